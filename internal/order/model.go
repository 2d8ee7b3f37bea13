package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
)

type Status string

const (
	StatusProcessing Status = "Processing"
	StatusPacked     Status = "Packed"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

func (s Status) String() string {
	return string(s)
}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(raw string) (Status, error) {
	for _, s := range []Status{StatusProcessing, StatusPacked, StatusShipped, StatusDelivered, StatusCancelled} {
		if strings.EqualFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "cod"
	PaymentUPI  PaymentMethod = "upi"
	PaymentCard PaymentMethod = "card"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentUPI, PaymentCard:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

func (s PaymentStatus) String() string {
	return string(s)
}

func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	for _, s := range []PaymentStatus{PaymentPending, PaymentPaid, PaymentFailed} {
		if strings.EqualFold(raw, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown payment status %q", ErrInvalidPaymentTransition, raw)
}

// LineItem is a copy of the listing data taken when the order was placed.
type LineItem struct {
	ItemID   uuid.UUID `json:"itemId"`
	Name     string    `json:"name"`
	Price    float64   `json:"price"`
	Breed    string    `json:"breed,omitempty"`
	Category string    `json:"category,omitempty"`
	Image    string    `json:"image,omitempty"`
	Quantity int       `json:"qty"`
}

type Address struct {
	Label   string `json:"label,omitempty" bson:"label"`
	Name    string `json:"name,omitempty" bson:"name"`
	Line1   string `json:"line1" bson:"line1"`
	Line2   string `json:"line2,omitempty" bson:"line2"`
	City    string `json:"city" bson:"city"`
	State   string `json:"state,omitempty" bson:"state"`
	Pincode string `json:"pincode,omitempty" bson:"pincode"`
	Phone   string `json:"phone,omitempty" bson:"phone"`
}

type TrackingStep struct {
	Label     string `json:"label" bson:"label"`
	Completed bool   `json:"completed" bson:"completed"`
}

// StatusChange records one accepted transition. From is empty for the
// initial placement.
type StatusChange struct {
	From    Status    `json:"from,omitempty"`
	To      Status    `json:"to"`
	ActorID uuid.UUID `json:"actorId"`
	At      time.Time `json:"at"`
}

type Order struct {
	ID               uuid.UUID      `json:"id"`
	UserID           uuid.UUID      `json:"userId"`
	Customer         string         `json:"customer"`
	Items            []LineItem     `json:"items"`
	TotalAmount      float64        `json:"totalAmount"`
	Address          Address        `json:"address"`
	PaymentMethod    PaymentMethod  `json:"paymentMethod"`
	PaymentStatus    PaymentStatus  `json:"paymentStatus"`
	PaymentReference string         `json:"paymentReference,omitempty"`
	Status           Status         `json:"orderStatus"`
	Tracking         []TrackingStep `json:"tracking"`
	History          []StatusChange `json:"history"`
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"date"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// ItemIDs returns the listing ids referenced by the order, without duplicates.
func (o *Order) ItemIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(o.Items))
	ids := make([]uuid.UUID, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.ItemID]; ok {
			continue
		}
		seen[item.ItemID] = struct{}{}
		ids = append(ids, item.ItemID)
	}
	return ids
}

// Actor is the authenticated caller of an order operation.
type Actor struct {
	UserID uuid.UUID
	Name   string
	Admin  bool
}

func (a Actor) canAccess(o *Order) bool {
	return a.Admin || a.UserID == o.UserID
}

type CreateOrderInput struct {
	Items            []LineItem
	Address          Address
	PaymentMethod    PaymentMethod
	PaymentReference string
}

type ListFilter struct {
	// UserID restricts the listing to one owner. Nil lists every order.
	UserID uuid.UUID
}
