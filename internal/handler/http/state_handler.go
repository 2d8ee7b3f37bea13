package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/livestockmart/internal/account"
)

type CartItemRequest struct {
	ListingID uuid.UUID `json:"listingId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gte=0,max=100"`
	Selected  bool      `json:"selected"`
}

type AddressRequest struct {
	Label   string `json:"label"`
	Name    string `json:"name"`
	Line1   string `json:"line1" validate:"required"`
	Line2   string `json:"line2"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state"`
	Pincode string `json:"pincode" validate:"omitempty,numeric,len=6"`
	Phone   string `json:"phone"`
}

// SaveStateRequest replaces the caller's cart, wishlist and saved addresses.
type SaveStateRequest struct {
	Cart      []CartItemRequest `json:"cart" validate:"max=200,dive"`
	Wishlist  []uuid.UUID       `json:"wishlist" validate:"max=500"`
	Addresses []AddressRequest  `json:"addresses" validate:"max=20,dive"`
}

func (r SaveStateRequest) toState() account.State {
	state := account.State{
		Cart:      make([]account.CartItem, 0, len(r.Cart)),
		Wishlist:  r.Wishlist,
		Addresses: make([]account.Address, 0, len(r.Addresses)),
	}
	for _, item := range r.Cart {
		state.Cart = append(state.Cart, account.CartItem{
			ListingID: item.ListingID,
			Quantity:  item.Quantity,
			Selected:  item.Selected,
		})
	}
	for _, a := range r.Addresses {
		state.Addresses = append(state.Addresses, account.Address(a))
	}
	return state
}

type StateHandler struct {
	service  account.Service
	validate *validator.Validate
}

func NewStateHandler(service account.Service) *StateHandler {
	return &StateHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes expects router to be behind authentication.
func (h *StateHandler) RegisterRoutes(router chi.Router) {
	router.Get("/user/state", h.handleGetState)
	router.Put("/user/state", h.handleSaveState)
}

func (h *StateHandler) handleGetState(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetState(r.Context(), id.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to load user state")
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

func (h *StateHandler) handleSaveState(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	var requestPayload SaveStateRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	saved, err := h.service.SaveState(r.Context(), id.UserID, requestPayload.toState())
	if err != nil {
		respondWithServiceError(w, err, "Failed to save user state")
		return
	}

	respondWithJSON(w, http.StatusOK, saved)
}
