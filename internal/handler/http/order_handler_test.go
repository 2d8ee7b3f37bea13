package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

func sampleOrder(owner uuid.UUID) *order.Order {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &order.Order{
		ID:       uuid.Must(uuid.NewV4()),
		UserID:   owner,
		Customer: "Ravi Kumar",
		Items: []order.LineItem{
			{ItemID: uuid.Must(uuid.NewV4()), Name: "Boer Goat", Breed: "Boer", Price: 18000, Quantity: 1},
		},
		TotalAmount:   18000,
		Address:       order.Address{Line1: "12 Farm Road", City: "Mumbai"},
		PaymentMethod: order.PaymentCOD,
		PaymentStatus: order.PaymentPending,
		Status:        order.StatusProcessing,
		Tracking:      order.TrackingFor(order.StatusProcessing),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	ts := newTestServer(t)
	c := ts.login(t, "customer")
	itemID := uuid.Must(uuid.NewV4())
	created := sampleOrder(c.identity.UserID)

	ts.orders.On("CreateOrder", mock.Anything, c.actor(), mock.MatchedBy(func(in order.CreateOrderInput) bool {
		return len(in.Items) == 1 &&
			in.Items[0].ItemID == itemID &&
			in.Items[0].Quantity == 2 &&
			in.Address.City == "Mumbai" &&
			in.PaymentMethod == order.PaymentUPI
	})).Return(created, nil).Once()

	body := fmt.Sprintf(`{
		"items": [{"itemId": %q, "name": "Boer Goat", "price": 18000, "breed": "Boer", "qty": 2}],
		"address": {"line1": "12 Farm Road", "city": "Mumbai", "pincode": "400001"},
		"paymentMethod": "upi",
		"totalAmount": 1
	}`, itemID)
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body))
	c.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "Processing", got["orderStatus"])
	assert.Equal(t, "Pending", got["paymentStatus"])
	assert.Equal(t, float64(18000), got["totalAmount"])
	assert.Contains(t, got, "tracking")
	ts.orders.AssertExpectations(t)
}

func TestOrderHandler_CreateOrder_ReusedPaymentReference(t *testing.T) {
	ts := newTestServer(t)
	c := ts.login(t, "customer")
	ts.orders.On("CreateOrder", mock.Anything, c.actor(), mock.MatchedBy(func(in order.CreateOrderInput) bool {
		return in.PaymentReference == "pi_paid_once"
	})).Return(nil, order.ErrPaymentReferenceInUse).Once()

	body := fmt.Sprintf(`{
		"items": [{"itemId": %q, "name": "Boer Goat", "price": 2000, "qty": 1}],
		"address": {"line1": "12 Farm Road", "city": "Mumbai", "pincode": "400001"},
		"paymentMethod": "card",
		"paymentReference": "pi_paid_once"
	}`, uuid.Must(uuid.NewV4()))
	req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(body))
	c.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	ts.orders.AssertExpectations(t)
}

func TestOrderHandler_CreateOrder_Rejected(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "no items", body: `{"items": [], "address": {"line1": "x", "city": "y"}}`},
		{name: "zero quantity", body: fmt.Sprintf(`{"items": [{"itemId": %q, "name": "Goat", "price": 1, "qty": 0}], "address": {"line1": "x", "city": "y"}}`, uuid.Must(uuid.NewV4()))},
		{name: "negative price", body: fmt.Sprintf(`{"items": [{"itemId": %q, "name": "Goat", "price": -5, "qty": 1}], "address": {"line1": "x", "city": "y"}}`, uuid.Must(uuid.NewV4()))},
		{name: "missing address", body: fmt.Sprintf(`{"items": [{"itemId": %q, "name": "Goat", "price": 5, "qty": 1}]}`, uuid.Must(uuid.NewV4()))},
		{name: "unknown payment method", body: fmt.Sprintf(`{"items": [{"itemId": %q, "name": "Goat", "price": 5, "qty": 1}], "address": {"line1": "x", "city": "y"}, "paymentMethod": "barter"}`, uuid.Must(uuid.NewV4()))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			c := ts.login(t, "customer")

			req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewBufferString(tc.body))
			c.authorize(req)
			rr := httptest.NewRecorder()
			ts.router.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			ts.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestOrderHandler_RequiresAuthentication(t *testing.T) {
	ts := newTestServer(t)

	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/orders", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestOrderHandler_ListOrders_Scoping(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin")

	own := admin.actor()
	own.Admin = false
	ts.orders.On("ListOrders", mock.Anything, own).Return([]order.Order{*sampleOrder(admin.identity.UserID)}, nil).Once()
	ts.orders.On("ListOrders", mock.Anything, admin.actor()).Return(nil, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	admin.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var mine []order.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&mine))
	assert.Len(t, mine, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	admin.authorize(req)
	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	ts.orders.AssertExpectations(t)
}

func TestOrderHandler_UpdateOrderStatus(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())

	testCases := []struct {
		name       string
		body       string
		wantStatus order.Status
		serviceErr error
		callsSvc   bool
		wantCode   int
	}{
		{name: "advance", body: `{"status":"shipped"}`, wantStatus: order.StatusShipped, callsSvc: true, wantCode: http.StatusOK},
		{name: "illegal transition", body: `{"status":"Cancelled"}`, wantStatus: order.StatusCancelled, serviceErr: order.ErrDeliveredNotCancellable, callsSvc: true, wantCode: http.StatusBadRequest},
		{name: "foreign order", body: `{"status":"Packed"}`, wantStatus: order.StatusPacked, serviceErr: order.ErrForbidden, callsSvc: true, wantCode: http.StatusForbidden},
		{name: "missing order", body: `{"status":"Packed"}`, wantStatus: order.StatusPacked, serviceErr: order.ErrOrderNotFound, callsSvc: true, wantCode: http.StatusNotFound},
		{name: "unknown status", body: `{"status":"Teleported"}`, wantCode: http.StatusBadRequest},
		{name: "empty status", body: `{}`, wantCode: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			c := ts.login(t, "customer")
			if tc.callsSvc {
				var result *order.Order
				if tc.serviceErr == nil {
					result = sampleOrder(c.identity.UserID)
					result.Status = tc.wantStatus
				}
				ts.orders.On("UpdateOrderStatus", mock.Anything, c.actor(), orderID, tc.wantStatus).Return(result, tc.serviceErr).Once()
			}

			req := httptest.NewRequest(http.MethodPut, "/api/orders/"+orderID.String(), bytes.NewBufferString(tc.body))
			c.authorize(req)
			rr := httptest.NewRecorder()
			ts.router.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantCode, rr.Code)
			if tc.callsSvc {
				ts.orders.AssertExpectations(t)
			} else {
				ts.orders.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOrderHandler_CancelOrder(t *testing.T) {
	ts := newTestServer(t)
	c := ts.login(t, "customer")
	cancelled := sampleOrder(c.identity.UserID)
	cancelled.Status = order.StatusCancelled
	cancelled.Tracking = order.TrackingFor(order.StatusCancelled)

	ts.orders.On("CancelOrder", mock.Anything, c.actor(), cancelled.ID).Return(cancelled, nil).Once()
	other := uuid.Must(uuid.NewV4())
	ts.orders.On("CancelOrder", mock.Anything, c.actor(), other).Return(nil, order.ErrOnlyProcessingCancellable).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/orders/"+cancelled.ID.String()+"/cancel", nil)
	c.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var got order.Order
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, order.StatusCancelled, got.Status)

	req = httptest.NewRequest(http.MethodPost, "/api/orders/"+other.String()+"/cancel", nil)
	c.authorize(req)
	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var errorResponse map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errorResponse))
	assert.Contains(t, errorResponse["error"], "only processing orders can be cancelled")
}

func TestOrderHandler_UpdatePaymentStatus(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin")
	customer := ts.login(t, "customer")
	o := sampleOrder(customer.identity.UserID)
	paid := *o
	paid.PaymentStatus = order.PaymentPaid

	ts.orders.On("UpdatePaymentStatus", mock.Anything, o.ID, order.PaymentPaid, "cash-receipt-7").Return(&paid, nil).Once()

	req := httptest.NewRequest(http.MethodPut, "/api/admin/orders/"+o.ID.String()+"/payment",
		bytes.NewBufferString(`{"paymentStatus":"paid","reference":"cash-receipt-7"}`))
	admin.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/admin/orders/"+o.ID.String()+"/payment", bytes.NewBufferString(`{"paymentStatus":"Refunded"}`))
	admin.authorize(req)
	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/admin/orders/"+o.ID.String()+"/payment", bytes.NewBufferString(`{"paymentStatus":"Paid"}`))
	customer.authorize(req)
	rr = httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	ts.orders.AssertExpectations(t)
}

func TestOrderHandler_Invoice(t *testing.T) {
	ts := newTestServer(t)
	c := ts.login(t, "customer")
	o := sampleOrder(c.identity.UserID)
	ts.orders.On("GetOrder", mock.Anything, c.actor(), o.ID).Return(o, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+o.ID.String()+"/invoice", nil)
	c.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")))
}

func TestOrderHandler_GetOrder_Forbidden(t *testing.T) {
	ts := newTestServer(t)
	c := ts.login(t, "customer")
	id := uuid.Must(uuid.NewV4())
	ts.orders.On("GetOrder", mock.Anything, c.actor(), id).Return(nil, order.ErrForbidden).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/orders/"+id.String(), nil)
	c.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestOrderHandler_FeedSubscriber(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "admin")

	req := httptest.NewRequest(http.MethodGet, "/api/orders/ws", nil)
	admin.authorize(req)
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusSwitchingProtocols, rr.Code)
	assert.Equal(t, admin.identity.UserID, ts.feed.sub.UserID)
	assert.True(t, ts.feed.sub.Admin)
}
