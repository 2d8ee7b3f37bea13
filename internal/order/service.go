package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// allowedTransitions is the only place order status moves are defined.
// Progression may skip ahead but never goes back; Delivered and Cancelled
// are terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusProcessing: {
		StatusPacked:    true,
		StatusShipped:   true,
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusPacked: {
		StatusShipped:   true,
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
		StatusCancelled: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

var allowedPaymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending: {
		PaymentPaid:   true,
		PaymentFailed: true,
	},
	PaymentFailed: {
		PaymentPaid:    true,
		PaymentPending: true,
	},
	PaymentPaid: {},
}

const maxUpdateAttempts = 3

var (
	ErrInvalidOrder              = errors.New("invalid order")
	ErrForbidden                 = errors.New("not authorized to access this order")
	ErrUnknownStatus             = errors.New("unknown order status")
	ErrInvalidStatusTransition   = errors.New("invalid order status transition")
	ErrDeliveredNotCancellable   = fmt.Errorf("delivered orders cannot be cancelled: %w", ErrInvalidStatusTransition)
	ErrOnlyProcessingCancellable = fmt.Errorf("only processing orders can be cancelled: %w", ErrInvalidStatusTransition)
	ErrInvalidPaymentTransition  = errors.New("invalid payment status transition")
)

// CanTransition reports whether the table allows moving from one status to another.
func CanTransition(from, to Status) bool {
	return allowedTransitions[from][to]
}

type Service interface {
	CreateOrder(ctx context.Context, actor Actor, input CreateOrderInput) (*Order, error)
	GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error)
	ListOrders(ctx context.Context, actor Actor) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, actor Actor, id uuid.UUID, newStatus Status) (*Order, error)
	CancelOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, reference string) (*Order, error)
}

type Option func(*service)

// WithPaymentVerifier lets card orders start as Paid when the provider
// confirms the supplied payment reference.
func WithPaymentVerifier(v PaymentVerifier) Option {
	return func(s *service) {
		s.verifier = v
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *service) {
		s.events = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

type service struct {
	orderRepo Repository
	verifier  PaymentVerifier
	events    EventPublisher
	now       func() time.Time
}

func NewService(orderRepo Repository, opts ...Option) Service {
	s := &service{
		orderRepo: orderRepo,
		events:    NopPublisher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func validateCreateInput(input *CreateOrderInput) error {
	if len(input.Items) == 0 {
		return fmt.Errorf("%w: no items in order", ErrInvalidOrder)
	}

	for i := range input.Items {
		item := &input.Items[i]
		if item.ItemID == uuid.Nil {
			return fmt.Errorf("%w: item %d has no item id", ErrInvalidOrder, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for item %s must be greater than zero", ErrInvalidOrder, item.ItemID)
		}
		if item.Price < 0 {
			return fmt.Errorf("%w: price for item %s cannot be negative", ErrInvalidOrder, item.ItemID)
		}
	}

	if input.PaymentMethod == "" {
		input.PaymentMethod = PaymentCOD
	}
	if !input.PaymentMethod.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidOrder, input.PaymentMethod)
	}

	if strings.TrimSpace(input.Address.Line1) == "" || strings.TrimSpace(input.Address.City) == "" {
		return fmt.Errorf("%w: delivery address requires line1 and city", ErrInvalidOrder)
	}

	return nil
}

// orderTotal sums price*quantity in decimal so that float rounding in the
// individual products does not leak into the stored total.
func orderTotal(items []LineItem) float64 {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	f, _ := total.Round(2).Float64()
	return f
}

func (s *service) CreateOrder(ctx context.Context, actor Actor, input CreateOrderInput) (*Order, error) {
	if err := validateCreateInput(&input); err != nil {
		log.Warn().Err(err).Stringer("user_id", actor.UserID).Msg("service: rejected order input")
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		UserID:           actor.UserID,
		Customer:         actor.Name,
		Items:            append([]LineItem(nil), input.Items...),
		TotalAmount:      orderTotal(input.Items),
		Address:          input.Address,
		PaymentMethod:    input.PaymentMethod,
		PaymentStatus:    PaymentPending,
		PaymentReference: strings.TrimSpace(input.PaymentReference),
		Status:           StatusProcessing,
		Tracking:         TrackingFor(StatusProcessing),
		History: []StatusChange{
			{To: StatusProcessing, ActorID: actor.UserID, At: now},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if o.PaymentReference != "" && s.verifier != nil {
		paid, err := s.verifier.VerifyPayment(ctx, actor.UserID, o.PaymentMethod, o.PaymentReference, o.TotalAmount)
		if err != nil {
			log.Warn().Err(err).Str("payment_reference", o.PaymentReference).Msg("service: payment verification failed, order stays pending")
		} else if paid {
			o.PaymentStatus = PaymentPaid
		}
	}

	if err := s.orderRepo.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, ErrPaymentReferenceInUse) {
			log.Warn().Str("payment_reference", o.PaymentReference).Stringer("user_id", actor.UserID).Msg("service: payment reference already used by another order")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", actor.UserID).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Stringer("user_id", o.UserID).
		Float64("total_amount", o.TotalAmount).
		Stringer("payment_status", o.PaymentStatus).
		Msg("service: order created")

	s.events.Publish(ctx, NewEvent(EventOrderCreated, o))
	return o, nil
}

func (s *service) GetOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error) {
	o, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.canAccess(o) {
		log.Warn().Stringer("order_id", id).Stringer("user_id", actor.UserID).Msg("service: foreign order access denied")
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) ListOrders(ctx context.Context, actor Actor) ([]Order, error) {
	filter := ListFilter{UserID: actor.UserID}
	if actor.Admin {
		filter = ListFilter{}
	}

	orders, err := s.orderRepo.ListOrders(ctx, filter)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", actor.UserID).Bool("admin", actor.Admin).Msg("service: failed to list orders in repository")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}
	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, actor Actor, id uuid.UUID, newStatus Status) (*Order, error) {
	if _, ok := allowedTransitions[newStatus]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, newStatus)
	}

	var oldStatus Status
	o, changed, err := s.mutate(ctx, id, func(o *Order) (bool, error) {
		if !actor.canAccess(o) {
			return false, ErrForbidden
		}
		oldStatus = o.Status
		if o.Status == newStatus {
			return false, nil
		}
		if o.Status == StatusDelivered && newStatus == StatusCancelled {
			return false, ErrDeliveredNotCancellable
		}
		if !CanTransition(o.Status, newStatus) {
			return false, fmt.Errorf("%w: from %s to %s", ErrInvalidStatusTransition, o.Status, newStatus)
		}
		s.applyStatus(o, actor, newStatus)
		return true, nil
	})
	if err != nil {
		s.logMutationError(err, id, actor, newStatus)
		return nil, err
	}

	if !changed {
		log.Info().Stringer("order_id", id).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
		return o, nil
	}

	log.Info().Stringer("order_id", id).Stringer("old_status", oldStatus).Stringer("new_status", newStatus).Msg("service: order status updated")
	s.events.Publish(ctx, NewEvent(EventStatusChanged, o))
	return o, nil
}

func (s *service) CancelOrder(ctx context.Context, actor Actor, id uuid.UUID) (*Order, error) {
	o, _, err := s.mutate(ctx, id, func(o *Order) (bool, error) {
		if actor.UserID != o.UserID {
			return false, ErrForbidden
		}
		if o.Status != StatusProcessing {
			return false, ErrOnlyProcessingCancellable
		}
		s.applyStatus(o, actor, StatusCancelled)
		return true, nil
	})
	if err != nil {
		s.logMutationError(err, id, actor, StatusCancelled)
		return nil, err
	}

	log.Info().Stringer("order_id", id).Stringer("user_id", actor.UserID).Msg("service: order cancelled by owner")
	s.events.Publish(ctx, NewEvent(EventStatusChanged, o))
	return o, nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status PaymentStatus, reference string) (*Order, error) {
	if _, ok := allowedPaymentTransitions[status]; !ok {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrInvalidPaymentTransition, status)
	}

	o, changed, err := s.mutate(ctx, id, func(o *Order) (bool, error) {
		if o.PaymentStatus == status {
			return false, nil
		}
		if !allowedPaymentTransitions[o.PaymentStatus][status] {
			return false, fmt.Errorf("%w: from %s to %s", ErrInvalidPaymentTransition, o.PaymentStatus, status)
		}
		o.PaymentStatus = status
		if reference = strings.TrimSpace(reference); reference != "" {
			o.PaymentReference = reference
		}
		return true, nil
	})
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) && !errors.Is(err, ErrInvalidPaymentTransition) {
			log.Error().Err(err).Stringer("order_id", id).Stringer("payment_status", status).Msg("service: failed to update payment status")
		} else {
			log.Warn().Err(err).Stringer("order_id", id).Stringer("payment_status", status).Msg("service: payment status update rejected")
		}
		return nil, err
	}

	if changed {
		log.Info().Stringer("order_id", id).Stringer("payment_status", status).Msg("service: payment status updated")
		s.events.Publish(ctx, NewEvent(EventPaymentUpdated, o))
	}
	return o, nil
}

func (s *service) applyStatus(o *Order, actor Actor, newStatus Status) {
	now := s.now().UTC()
	o.History = append(o.History, StatusChange{
		From:    o.Status,
		To:      newStatus,
		ActorID: actor.UserID,
		At:      now,
	})
	o.Status = newStatus
	o.Tracking = TrackingFor(newStatus)
	o.UpdatedAt = now
}

func (s *service) getOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Stringer("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", id).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}
	return o, nil
}

// mutate re-reads the order, applies fn and writes it back guarded by the
// version that was read. A lost race is retried from a fresh read so that fn
// always judges the latest state.
func (s *service) mutate(ctx context.Context, id uuid.UUID, fn func(o *Order) (bool, error)) (*Order, bool, error) {
	for attempt := 1; ; attempt++ {
		o, err := s.getOrder(ctx, id)
		if err != nil {
			return nil, false, err
		}

		expectedVersion := o.Version
		changed, err := fn(o)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return o, false, nil
		}
		o.UpdatedAt = s.now().UTC()

		err = s.orderRepo.UpdateOrder(ctx, o, expectedVersion)
		if err == nil {
			return o, true, nil
		}
		if errors.Is(err, ErrConcurrentUpdate) && attempt < maxUpdateAttempts {
			log.Warn().Stringer("order_id", id).Int("attempt", attempt).Msg("service: concurrent order update, retrying")
			continue
		}
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrConcurrentUpdate) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("service: failed to update order: %w", err)
	}
}

func (s *service) logMutationError(err error, id uuid.UUID, actor Actor, status Status) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidStatusTransition), errors.Is(err, ErrConcurrentUpdate):
		log.Warn().
			Err(err).
			Stringer("order_id", id).
			Stringer("user_id", actor.UserID).
			Stringer("new_status", status).
			Msg("service: order status change rejected")
	default:
		log.Error().Err(err).Stringer("order_id", id).Stringer("new_status", status).Msg("service: failed to update order status")
	}
}
