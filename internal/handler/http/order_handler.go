package http

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/auth"
	"github.com/vasiliy-maslov/livestockmart/internal/invoice"
	"github.com/vasiliy-maslov/livestockmart/internal/notify"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

type OrderItemRequest struct {
	ItemID   uuid.UUID `json:"itemId" validate:"required"`
	Name     string    `json:"name" validate:"required"`
	Price    float64   `json:"price" validate:"gte=0"`
	Breed    string    `json:"breed"`
	Category string    `json:"category"`
	Image    string    `json:"image"`
	Quantity int       `json:"qty" validate:"gt=0"`
}

// CreateOrderRequest accepts a client total for compatibility; the server
// always recomputes it.
type CreateOrderRequest struct {
	Items            []OrderItemRequest `json:"items" validate:"required,min=1,max=50,dive"`
	Address          AddressRequest     `json:"address"`
	PaymentMethod    string             `json:"paymentMethod" validate:"omitempty,oneof=cod upi card"`
	PaymentReference string             `json:"paymentReference" validate:"max=255"`
	TotalAmount      *float64           `json:"totalAmount,omitempty"`
}

func (r CreateOrderRequest) toInput() order.CreateOrderInput {
	items := make([]order.LineItem, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, order.LineItem{
			ItemID:   item.ItemID,
			Name:     item.Name,
			Price:    item.Price,
			Breed:    item.Breed,
			Category: item.Category,
			Image:    item.Image,
			Quantity: item.Quantity,
		})
	}
	return order.CreateOrderInput{
		Items:            items,
		Address:          order.Address(r.Address),
		PaymentMethod:    order.PaymentMethod(r.PaymentMethod),
		PaymentReference: r.PaymentReference,
	}
}

type UpdateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type UpdatePaymentStatusRequest struct {
	PaymentStatus string `json:"paymentStatus" validate:"required"`
	Reference     string `json:"reference" validate:"max=255"`
}

// OrderFeed streams live order events to a websocket client.
type OrderFeed interface {
	ServeWS(w http.ResponseWriter, r *http.Request, sub notify.Subscriber)
}

type OrderHandler struct {
	service  order.Service
	feed     OrderFeed
	validate *validator.Validate
}

func NewOrderHandler(service order.Service, feed OrderFeed) *OrderHandler {
	return &OrderHandler{
		service:  service,
		feed:     feed,
		validate: validator.New(),
	}
}

// RegisterRoutes expects router to be behind authentication.
func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders", h.handleListOwnOrders)
	router.Post("/orders", h.handleCreateOrder)
	if h.feed != nil {
		router.Get("/orders/ws", h.handleOrderFeed)
	}
	router.Get("/orders/{id}", h.handleGetOrder)
	router.Put("/orders/{id}", h.handleUpdateOrderStatus)
	router.Post("/orders/{id}/cancel", h.handleCancelOrder)
	router.Get("/orders/{id}/invoice", h.handleInvoice)
}

// RegisterAdminRoutes expects router to be behind admin authorization.
func (h *OrderHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/orders", h.handleListAllOrders)
	router.Put("/orders/{id}/payment", h.handleUpdatePaymentStatus)
}

func actorFrom(id auth.Identity) order.Actor {
	return order.Actor{UserID: id.UserID, Name: id.Name, Admin: id.IsAdmin()}
}

func (h *OrderHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var requestPayload CreateOrderRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateOrder(r.Context(), actorFrom(id), requestPayload.toInput())
	if err != nil {
		respondWithServiceError(w, err, "Failed to create order")
		return
	}

	if requestPayload.TotalAmount != nil && *requestPayload.TotalAmount != created.TotalAmount {
		log.Warn().
			Stringer("order_id", created.ID).
			Float64("client_total", *requestPayload.TotalAmount).
			Float64("server_total", created.TotalAmount).
			Msg("Client total differs from computed total")
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *OrderHandler) listOrders(w http.ResponseWriter, r *http.Request, actor order.Actor) {
	orders, err := h.service.ListOrders(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list orders")
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	respondWithJSON(w, http.StatusOK, orders)
}

// handleListOwnOrders lists only the caller's orders, admins included.
func (h *OrderHandler) handleListOwnOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	actor := actorFrom(id)
	actor.Admin = false
	h.listOrders(w, r, actor)
}

func (h *OrderHandler) handleListAllOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	h.listOrders(w, r, actorFrom(id))
}

func (h *OrderHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), actorFrom(id), orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	respondWithJSON(w, http.StatusOK, found)
}

func (h *OrderHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload UpdateOrderStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	status, err := order.ParseStatus(requestPayload.Status)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	updated, err := h.service.UpdateOrderStatus(r.Context(), actorFrom(id), orderID, status)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update order status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	cancelled, err := h.service.CancelOrder(r.Context(), actorFrom(id), orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to cancel order")
		return
	}

	respondWithJSON(w, http.StatusOK, cancelled)
}

func (h *OrderHandler) handleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload UpdatePaymentStatusRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	status, err := order.ParsePaymentStatus(requestPayload.PaymentStatus)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update payment status")
		return
	}

	updated, err := h.service.UpdatePaymentStatus(r.Context(), orderID, status, requestPayload.Reference)
	if err != nil {
		respondWithServiceError(w, err, "Failed to update payment status")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *OrderHandler) handleInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	found, err := h.service.GetOrder(r.Context(), actorFrom(id), orderID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get order")
		return
	}

	var buf bytes.Buffer
	if err := invoice.Write(&buf, found); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("Failed to render invoice")
		respondWithError(w, http.StatusInternalServerError, "Failed to render invoice")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+invoice.Number(found)+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Error().Err(err).Msg("Failed to write invoice response")
	}
}

func (h *OrderHandler) handleOrderFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	h.feed.ServeWS(w, r, notify.Subscriber{UserID: id.UserID, Admin: id.IsAdmin()})
}
