package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/account"
	"github.com/vasiliy-maslov/livestockmart/internal/auth"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
	"github.com/vasiliy-maslov/livestockmart/internal/payment"
)

const maxBodyBytes = 1 << 20

type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, catalog.ErrListingNotFound),
		errors.Is(err, order.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, order.ErrConcurrentUpdate),
		errors.Is(err, order.ErrPaymentReferenceInUse):
		return http.StatusConflict
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, account.ErrInvalidOTP):
		return http.StatusUnauthorized
	case errors.Is(err, order.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, account.ErrInvalidInput),
		errors.Is(err, catalog.ErrInvalidListing),
		errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, order.ErrInvalidPaymentTransition),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrUnsupportedMethod):
		return http.StatusBadRequest
	case errors.Is(err, payment.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage exposes the error text for client mistakes and hides it for
// server failures.
func clientMessage(err error, fallback string) string {
	if mapErrorToStatusCode(err) >= http.StatusInternalServerError {
		return fallback
	}
	return err.Error()
}

func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	code := mapErrorToStatusCode(err)
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Msg(fallback)
	} else {
		log.Warn().Err(err).Msg(fallback)
	}
	respondWithError(w, code, clientMessage(err, fallback))
}

func formatValidationErrors(errs validator.ValidationErrors) []string {
	details := make([]string, 0, len(errs))
	for _, fe := range errs {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("Field '%s' is required", fe.Field())
		case "email":
			msg = fmt.Sprintf("Field '%s' must be a valid email address", fe.Field())
		case "min":
			if fe.Kind().String() == "string" {
				msg = fmt.Sprintf("Field '%s' must be at least %s characters long", fe.Field(), fe.Param())
			} else {
				msg = fmt.Sprintf("Field '%s' must be at least %s", fe.Field(), fe.Param())
			}
		case "max":
			msg = fmt.Sprintf("Field '%s' must be at most %s", fe.Field(), fe.Param())
		case "gt":
			msg = fmt.Sprintf("Field '%s' must be greater than %s", fe.Field(), fe.Param())
		case "gte":
			msg = fmt.Sprintf("Field '%s' must be greater than or equal to %s", fe.Field(), fe.Param())
		case "len":
			msg = fmt.Sprintf("Field '%s' must be exactly %s characters long", fe.Field(), fe.Param())
		case "numeric":
			msg = fmt.Sprintf("Field '%s' must contain only digits", fe.Field())
		case "oneof":
			msg = fmt.Sprintf("Field '%s' must be one of: %s", fe.Field(), fe.Param())
		case "uuid4", "uuid":
			msg = fmt.Sprintf("Field '%s' must be a valid UUID", fe.Field())
		default:
			msg = fmt.Sprintf("Field '%s' failed on the '%s' rule", fe.Field(), fe.Tag())
		}
		details = append(details, msg)
	}
	return details
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes the error response itself and reports whether the caller may go on.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Failed to decode request body")
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload: %v", err))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			details := formatValidationErrors(validationErrors)
			respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
				Error:   "Validation failed: " + strings.Join(details, "; "),
				Details: details,
			})
		} else {
			log.Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
			respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		}
		return false
	}
	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idParam := chi.URLParam(r, "id")
	id, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("id", idParam).Msg("Failed to parse id parameter from URL")
		respondWithError(w, http.StatusBadRequest, "Invalid id parameter")
		return uuid.Nil, false
	}
	return id, true
}

// identity returns the caller set by auth.Manager.Authenticate. Routes using
// it are always mounted behind that middleware.
func identity(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Not authenticated")
	}
	return id, ok
}
