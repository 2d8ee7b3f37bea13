package http

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
	"github.com/vasiliy-maslov/livestockmart/internal/payment"
)

const maxWebhookBytes = 65536

type CardGateway interface {
	CreateIntent(ctx context.Context, userID, orderID uuid.UUID, amount float64) (*payment.Request, error)
	ParseWebhook(payload []byte, signature string) (*payment.WebhookResult, error)
}

type UPIGateway interface {
	CreateRequest(orderID uuid.UUID, amount float64) (*payment.Request, error)
}

// CreatePaymentRequest starts a payment either for an existing order, whose
// stored total is charged, or for a checkout total before the order exists.
type CreatePaymentRequest struct {
	Method  string     `json:"method" validate:"required,oneof=upi card"`
	Amount  float64    `json:"amount" validate:"omitempty,gt=0"`
	OrderID *uuid.UUID `json:"orderId"`
}

type PaymentHandler struct {
	orders   order.Service
	card     CardGateway
	upi      UPIGateway
	validate *validator.Validate
}

// NewPaymentHandler accepts nil gateways for providers that are not configured.
func NewPaymentHandler(orders order.Service, card CardGateway, upi UPIGateway) *PaymentHandler {
	return &PaymentHandler{
		orders:   orders,
		card:     card,
		upi:      upi,
		validate: validator.New(),
	}
}

// RegisterRoutes expects router to be behind authentication.
func (h *PaymentHandler) RegisterRoutes(router chi.Router) {
	router.Post("/payment/create", h.handleCreatePayment)
}

// RegisterWebhookRoutes mounts provider callbacks, which authenticate by
// signature instead of session.
func (h *PaymentHandler) RegisterWebhookRoutes(router chi.Router) {
	router.Post("/payment/stripe/webhook", h.handleStripeWebhook)
}

func (h *PaymentHandler) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var requestPayload CreatePaymentRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	if requestPayload.OrderID == nil && requestPayload.Amount <= 0 {
		respondWithError(w, http.StatusBadRequest, "Either orderId or a positive amount is required")
		return
	}

	amount := requestPayload.Amount
	orderID := uuid.Nil
	if requestPayload.OrderID != nil {
		existing, err := h.orders.GetOrder(r.Context(), actorFrom(id), *requestPayload.OrderID)
		if err != nil {
			respondWithServiceError(w, err, "Failed to load order for payment")
			return
		}
		if existing.PaymentStatus == order.PaymentPaid {
			respondWithError(w, http.StatusConflict, "Order is already paid")
			return
		}
		if existing.Status == order.StatusCancelled {
			respondWithError(w, http.StatusConflict, "Order is cancelled")
			return
		}
		orderID = existing.ID
		amount = existing.TotalAmount
	}

	var (
		req *payment.Request
		err error
	)
	switch order.PaymentMethod(requestPayload.Method) {
	case order.PaymentCard:
		if h.card == nil {
			err = payment.ErrNotConfigured
			break
		}
		req, err = h.card.CreateIntent(r.Context(), id.UserID, orderID, amount)
	case order.PaymentUPI:
		if h.upi == nil {
			err = payment.ErrNotConfigured
			break
		}
		req, err = h.upi.CreateRequest(orderID, amount)
	default:
		err = payment.ErrUnsupportedMethod
	}
	if err != nil {
		respondWithServiceError(w, err, "Failed to create payment")
		return
	}

	respondWithJSON(w, http.StatusOK, req)
}

func (h *PaymentHandler) handleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.card == nil {
		respondWithError(w, http.StatusServiceUnavailable, payment.ErrNotConfigured.Error())
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read webhook body")
		respondWithError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	result, err := h.card.ParseWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Warn().Err(err).Msg("Rejected stripe webhook")
		respondWithError(w, http.StatusBadRequest, "Invalid webhook signature")
		return
	}
	if result == nil {
		respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	_, err = h.orders.UpdatePaymentStatus(r.Context(), result.OrderID, result.Status, result.Reference)
	switch {
	case err == nil:
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrInvalidPaymentTransition),
		errors.Is(err, order.ErrPaymentReferenceInUse):
		// Redelivery cannot fix these, so acknowledge instead of asking for a retry.
		log.Warn().Err(err).Stringer("order_id", result.OrderID).Str("payment_reference", result.Reference).Msg("Ignored stripe payment update")
	default:
		respondWithServiceError(w, err, "Failed to apply payment update")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]bool{"received": true})
}
