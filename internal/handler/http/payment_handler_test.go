package http_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
	"github.com/vasiliy-maslov/livestockmart/internal/payment"
)

func TestPaymentHandler_CreateUPIForOrder(t *testing.T) {
	ts := newTestServer(t)
	c := ts.login(t, "customer")
	o := sampleOrder(c.identity.UserID)
	o.PaymentMethod = order.PaymentUPI
	ts.orders.On("GetOrder", mock.Anything, c.actor(), o.ID).Return(o, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/payment/create",
		bytes.NewBufferString(fmt.Sprintf(`{"method":"upi","amount":1,"orderId":%q}`, o.ID)))
	c.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got payment.Request
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, order.PaymentUPI, got.Method)
	assert.Equal(t, o.TotalAmount, got.Amount, "stored order total wins over the client amount")
	assert.True(t, strings.HasPrefix(got.UPILink, "upi://pay?"))
	assert.Contains(t, got.UPILink, "am=18000.00")
	assert.True(t, strings.HasPrefix(got.QRCode, "data:image/png;base64,"))
	assert.NotEmpty(t, got.Reference)
	ts.orders.AssertExpectations(t)
}

func TestPaymentHandler_CreateCard(t *testing.T) {
	ts := newTestServer(t)
	c := ts.login(t, "customer")
	intent := &payment.Request{Method: order.PaymentCard, Reference: "pi_123", Amount: 2500, Currency: "inr", ClientSecret: "pi_123_secret"}
	ts.card.On("CreateIntent", mock.Anything, c.identity.UserID, uuid.Nil, 2500.0).Return(intent, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/payment/create", bytes.NewBufferString(`{"method":"card","amount":2500}`))
	c.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var got payment.Request
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "pi_123_secret", got.ClientSecret)
	ts.card.AssertExpectations(t)
}

func TestPaymentHandler_CreateErrors(t *testing.T) {
	paidOrder := func(owner uuid.UUID) *order.Order {
		o := sampleOrder(owner)
		o.PaymentStatus = order.PaymentPaid
		return o
	}
	cancelledOrder := func(owner uuid.UUID) *order.Order {
		o := sampleOrder(owner)
		o.Status = order.StatusCancelled
		return o
	}

	testCases := []struct {
		name       string
		opts       []serverOption
		body       func(orderID uuid.UUID) string
		existing   func(owner uuid.UUID) *order.Order
		lookupErr  error
		wantStatus int
	}{
		{
			name:       "card not configured",
			opts:       []serverOption{withoutCard()},
			body:       func(uuid.UUID) string { return `{"method":"card","amount":100}` },
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "no amount and no order",
			body:       func(uuid.UUID) string { return `{"method":"upi"}` },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "cash is not an online method",
			body:       func(uuid.UUID) string { return `{"method":"cod","amount":100}` },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "already paid",
			body:       func(id uuid.UUID) string { return fmt.Sprintf(`{"method":"upi","orderId":%q}`, id) },
			existing:   paidOrder,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "cancelled",
			body:       func(id uuid.UUID) string { return fmt.Sprintf(`{"method":"card","orderId":%q}`, id) },
			existing:   cancelledOrder,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "foreign order",
			body:       func(id uuid.UUID) string { return fmt.Sprintf(`{"method":"upi","orderId":%q}`, id) },
			lookupErr:  order.ErrForbidden,
			wantStatus: http.StatusForbidden,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, tc.opts...)
			c := ts.login(t, "customer")
			orderID := uuid.Must(uuid.NewV4())
			switch {
			case tc.existing != nil:
				o := tc.existing(c.identity.UserID)
				o.ID = orderID
				ts.orders.On("GetOrder", mock.Anything, c.actor(), orderID).Return(o, nil).Once()
			case tc.lookupErr != nil:
				ts.orders.On("GetOrder", mock.Anything, c.actor(), orderID).Return(nil, tc.lookupErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/payment/create", bytes.NewBufferString(tc.body(orderID)))
			c.authorize(req)
			rr := httptest.NewRecorder()
			ts.router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			ts.card.AssertNotCalled(t, "CreateIntent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			ts.orders.AssertExpectations(t)
		})
	}
}

func TestPaymentHandler_StripeWebhook(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	paid := &payment.WebhookResult{OrderID: orderID, Status: order.PaymentPaid, Reference: "pi_123"}

	testCases := []struct {
		name       string
		result     *payment.WebhookResult
		parseErr   error
		updateErr  error
		wantUpdate bool
		wantStatus int
	}{
		{name: "payment succeeded", result: paid, wantUpdate: true, wantStatus: http.StatusOK},
		{name: "ignored event", wantStatus: http.StatusOK},
		{name: "bad signature", parseErr: payment.ErrInvalidWebhook, wantStatus: http.StatusBadRequest},
		{name: "already settled", result: paid, updateErr: order.ErrInvalidPaymentTransition, wantUpdate: true, wantStatus: http.StatusOK},
		{name: "unknown order", result: paid, updateErr: order.ErrOrderNotFound, wantUpdate: true, wantStatus: http.StatusOK},
		{name: "reference on another order", result: paid, updateErr: order.ErrPaymentReferenceInUse, wantUpdate: true, wantStatus: http.StatusOK},
		{name: "storage failure", result: paid, updateErr: errors.New("connection reset"), wantUpdate: true, wantStatus: http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			payload := []byte(`{"id":"evt_1"}`)
			ts.card.On("ParseWebhook", payload, "t=1,v1=abc").Return(tc.result, tc.parseErr).Once()
			if tc.wantUpdate {
				var updated *order.Order
				if tc.updateErr == nil {
					updated = sampleOrder(uuid.Must(uuid.NewV4()))
				}
				ts.orders.On("UpdatePaymentStatus", mock.Anything, orderID, order.PaymentPaid, "pi_123").Return(updated, tc.updateErr).Once()
			}

			req := httptest.NewRequest(http.MethodPost, "/api/payment/stripe/webhook", bytes.NewReader(payload))
			req.Header.Set("Stripe-Signature", "t=1,v1=abc")
			rr := httptest.NewRecorder()
			ts.router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			ts.card.AssertExpectations(t)
			ts.orders.AssertExpectations(t)
			if !tc.wantUpdate {
				ts.orders.AssertNotCalled(t, "UpdatePaymentStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestPaymentHandler_WebhookWithoutCard(t *testing.T) {
	ts := newTestServer(t, withoutCard())

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/payment/stripe/webhook", bytes.NewBufferString(`{}`)))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
