package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

var ErrInvalidWebhook = errors.New("invalid webhook payload")

// intentClient is the slice of the Stripe API the gateway needs.
type intentClient interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Stripe struct {
	intents       intentClient
	webhookSecret string
	currency      string
}

// NewStripe returns nil when no secret key is configured.
func NewStripe(cfg config.StripeConfig) *Stripe {
	if cfg.SecretKey == "" {
		return nil
	}
	sc := client.New(cfg.SecretKey, nil)
	return newStripe(sc.PaymentIntents, cfg)
}

func newStripe(intents intentClient, cfg config.StripeConfig) *Stripe {
	return &Stripe{
		intents:       intents,
		webhookSecret: cfg.WebhookSecret,
		currency:      cfg.Currency,
	}
}

// CreateIntent opens a card PaymentIntent. orderID may be Nil when the client
// pays before placing the order.
func (s *Stripe) CreateIntent(ctx context.Context, userID, orderID uuid.UUID, amount float64) (*Request, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(amount)),
		Currency: stripe.String(s.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID.String())
	if orderID != uuid.Nil {
		params.AddMetadata("order_id", orderID.String())
	}

	pi, err := s.intents.New(params)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("payment: failed to create stripe payment intent")
		return nil, fmt.Errorf("payment: failed to create payment intent: %w", err)
	}

	log.Info().Str("payment_intent", pi.ID).Stringer("user_id", userID).Int64("amount", pi.Amount).Msg("payment: stripe payment intent created")
	return &Request{
		Method:       order.PaymentCard,
		Reference:    pi.ID,
		Amount:       amount,
		Currency:     s.currency,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifyPayment reports whether the intent has succeeded for exactly amount
// and was opened by userID for an order that does not exist yet. Intents
// created for a placed order settle through the webhook instead.
func (s *Stripe) VerifyPayment(ctx context.Context, userID uuid.UUID, method order.PaymentMethod, reference string, amount float64) (bool, error) {
	if method != order.PaymentCard {
		return false, nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.intents.Get(reference, params)
	if err != nil {
		return false, fmt.Errorf("payment: failed to fetch payment intent %s: %w", reference, err)
	}

	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		log.Info().Str("payment_intent", reference).Str("status", string(pi.Status)).Msg("payment: intent not settled")
		return false, nil
	}
	if pi.Amount != minorUnits(amount) || string(pi.Currency) != s.currency {
		log.Warn().Str("payment_intent", reference).Int64("paid", pi.Amount).Int64("expected", minorUnits(amount)).Msg("payment: intent amount mismatch")
		return false, nil
	}
	if pi.Metadata["user_id"] != userID.String() {
		log.Warn().Str("payment_intent", reference).Stringer("user_id", userID).Str("payer", pi.Metadata["user_id"]).Msg("payment: intent belongs to another account")
		return false, nil
	}
	if pi.Metadata["order_id"] != "" {
		log.Warn().Str("payment_intent", reference).Str("order_id", pi.Metadata["order_id"]).Msg("payment: intent is bound to an existing order")
		return false, nil
	}
	return true, nil
}

// WebhookResult is a payment outcome that should be applied to an order.
type WebhookResult struct {
	OrderID   uuid.UUID
	Status    order.PaymentStatus
	Reference string
}

// ParseWebhook verifies the Stripe signature and extracts the payment outcome.
// It returns nil for event types that carry no order payment update.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	var status order.PaymentStatus
	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		status = order.PaymentPaid
	case stripe.EventTypePaymentIntentPaymentFailed:
		status = order.PaymentFailed
	default:
		log.Debug().Str("event_type", string(event.Type)).Msg("payment: ignoring stripe event")
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	rawOrderID := pi.Metadata["order_id"]
	if rawOrderID == "" {
		log.Info().Str("payment_intent", pi.ID).Msg("payment: stripe event without order id")
		return nil, nil
	}
	orderID, err := uuid.FromString(rawOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad order id %q", ErrInvalidWebhook, rawOrderID)
	}

	return &WebhookResult{OrderID: orderID, Status: status, Reference: pi.ID}, nil
}
