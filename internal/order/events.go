package order

import (
	"context"
	"time"

	"github.com/gofrs/uuid"
)

type EventType string

const (
	EventOrderCreated   EventType = "order.created"
	EventStatusChanged  EventType = "order.status_changed"
	EventPaymentUpdated EventType = "order.payment_updated"
)

type Event struct {
	Type          EventType     `json:"type"`
	OrderID       uuid.UUID     `json:"orderId"`
	UserID        uuid.UUID     `json:"userId"`
	Status        Status        `json:"orderStatus"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	TotalAmount   float64       `json:"totalAmount"`
	OccurredAt    time.Time     `json:"occurredAt"`
	Order         *Order        `json:"order,omitempty"`
}

func NewEvent(eventType EventType, o *Order) Event {
	snapshot := *o
	return Event{
		Type:          eventType,
		OrderID:       o.ID,
		UserID:        o.UserID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount,
		OccurredAt:    o.UpdatedAt,
		Order:         &snapshot,
	}
}

// EventPublisher delivers order events on a best-effort basis. Publish must
// not block the caller for long and never fails the triggering operation.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) {}

// PaymentVerifier confirms with a payment provider that reference settled
// exactly amount, was paid by userID and is not bound to an existing order.
type PaymentVerifier interface {
	VerifyPayment(ctx context.Context, userID uuid.UUID, method PaymentMethod, reference string, amount float64) (bool, error)
}
