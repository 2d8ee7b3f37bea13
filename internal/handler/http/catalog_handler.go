package http

import (
	"bytes"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
)

type ListingRequest struct {
	Name         string   `json:"name" validate:"required,min=2"`
	Category     string   `json:"category" validate:"required,oneof=Goat Sheep"`
	Breed        string   `json:"breed" validate:"required"`
	Age          string   `json:"age"`
	Price        float64  `json:"price" validate:"gt=0"`
	Image        string   `json:"image"`
	Description  string   `json:"description"`
	Weight       string   `json:"weight"`
	HealthStatus string   `json:"healthStatus"`
	Tags         []string `json:"tags" validate:"max=20"`
	Status       string   `json:"status" validate:"omitempty,oneof=Available Reserved Sold"`
	Quantity     int      `json:"quantity" validate:"gte=0"`
}

func (r ListingRequest) toInput() catalog.ListingInput {
	return catalog.ListingInput{
		Name:         r.Name,
		Category:     catalog.Category(r.Category),
		Breed:        r.Breed,
		Age:          r.Age,
		Price:        r.Price,
		Image:        r.Image,
		Description:  r.Description,
		Weight:       r.Weight,
		HealthStatus: r.HealthStatus,
		Tags:         r.Tags,
		Status:       catalog.Status(r.Status),
		Quantity:     r.Quantity,
	}
}

type CatalogHandler struct {
	service  catalog.Service
	validate *validator.Validate
}

func NewCatalogHandler(service catalog.Service) *CatalogHandler {
	return &CatalogHandler{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts the public storefront routes.
func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Get("/livestock", h.handleListAvailable)
	router.Get("/livestock/{id}", h.handleGetListing)
}

// RegisterAdminRoutes expects router to be behind admin authorization.
func (h *CatalogHandler) RegisterAdminRoutes(router chi.Router) {
	router.Get("/livestock", h.handleListAll)
	router.Get("/livestock/export", h.handleExport)
	router.Post("/livestock", h.handleCreateListing)
	router.Put("/livestock/{id}", h.handleUpdateListing)
	router.Delete("/livestock/{id}", h.handleDeleteListing)
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request, filter catalog.Filter) {
	listings, err := h.service.ListListings(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, err, "Failed to list livestock")
		return
	}
	if listings == nil {
		listings = []catalog.Listing{}
	}
	respondWithJSON(w, http.StatusOK, listings)
}

func (h *CatalogHandler) handleListAvailable(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, catalog.Filter{AvailableOnly: true})
}

func (h *CatalogHandler) handleListAll(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, catalog.Filter{})
}

func (h *CatalogHandler) handleGetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	listing, err := h.service.GetListing(r.Context(), id)
	if err != nil {
		if mapErrorToStatusCode(err) == http.StatusNotFound {
			respondWithError(w, http.StatusNotFound, "Livestock not found")
			return
		}
		respondWithServiceError(w, err, "Failed to get livestock")
		return
	}

	respondWithJSON(w, http.StatusOK, listing)
}

func (h *CatalogHandler) handleCreateListing(w http.ResponseWriter, r *http.Request) {
	var requestPayload ListingRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.CreateListing(r.Context(), requestPayload.toInput())
	if err != nil {
		respondWithServiceError(w, err, "Failed to create livestock")
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *CatalogHandler) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	var requestPayload ListingRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	updated, err := h.service.UpdateListing(r.Context(), id, requestPayload.toInput())
	if err != nil {
		if mapErrorToStatusCode(err) == http.StatusNotFound {
			respondWithError(w, http.StatusNotFound, "Livestock not found")
			return
		}
		respondWithServiceError(w, err, "Failed to update livestock")
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *CatalogHandler) handleDeleteListing(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteListing(r.Context(), id); err != nil {
		if mapErrorToStatusCode(err) == http.StatusNotFound {
			respondWithError(w, http.StatusNotFound, "Livestock not found")
			return
		}
		respondWithServiceError(w, err, "Failed to delete livestock")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportListings(r.Context(), &buf); err != nil {
		respondWithServiceError(w, err, "Failed to export livestock")
		return
	}

	filename := "livestock-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Error().Err(err).Msg("Failed to write export response")
	}
}
