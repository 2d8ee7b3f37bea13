package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/account"
	"github.com/vasiliy-maslov/livestockmart/internal/auth"
)

type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=2"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type OTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type OTPVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type AccountResponse struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Role      account.Role `json:"role"`
	CreatedAt time.Time    `json:"createdAt"`
}

type AuthResponse struct {
	User  AccountResponse `json:"user"`
	Token string          `json:"token"`
}

func newAccountResponse(a *account.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Role:      a.Role,
		CreatedAt: a.CreatedAt,
	}
}

type AuthHandler struct {
	service  account.Service
	tokens   *auth.Manager
	limiter  *RateLimiter
	validate *validator.Validate
}

func NewAuthHandler(service account.Service, tokens *auth.Manager, limiter *RateLimiter) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tokens:   tokens,
		limiter:  limiter,
		validate: validator.New(),
	}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Limit)
			}
			r.Post("/register", h.handleRegister)
			r.Post("/login", h.handleLogin)
			r.Post("/otp/request", h.handleRequestOTP)
			r.Post("/otp/verify", h.handleVerifyOTP)
		})
		r.Post("/logout", h.handleLogout)
		r.With(h.tokens.Authenticate).Get("/me", h.handleMe)
	})
}

// startSession issues a token for a and sets it as the session cookie.
func (h *AuthHandler) startSession(w http.ResponseWriter, a *account.Account, code int) {
	token, err := h.tokens.Issue(auth.Identity{
		UserID: a.ID,
		Email:  a.Email,
		Name:   a.Name,
		Role:   string(a.Role),
	})
	if err != nil {
		log.Error().Err(err).Stringer("user_id", a.ID).Msg("Failed to issue session token")
		respondWithError(w, http.StatusInternalServerError, "Failed to start session")
		return
	}
	h.tokens.SetCookie(w, token)
	respondWithJSON(w, code, AuthResponse{User: newAccountResponse(a), Token: token})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var requestPayload RegisterRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	created, err := h.service.Register(r.Context(), account.RegisterInput{
		Name:     requestPayload.Name,
		Email:    requestPayload.Email,
		Password: requestPayload.Password,
		Role:     account.RoleCustomer,
	})
	if err != nil {
		if mapErrorToStatusCode(err) == http.StatusConflict {
			log.Warn().Msg("Registration with an existing email")
			respondWithError(w, http.StatusConflict, "Email already exists")
			return
		}
		respondWithServiceError(w, err, "Failed to register user")
		return
	}

	h.startSession(w, created, http.StatusCreated)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	a, err := h.service.Authenticate(r.Context(), requestPayload.Email, requestPayload.Password)
	if err != nil {
		respondWithServiceError(w, err, "Failed to log in")
		return
	}

	h.startSession(w, a, http.StatusOK)
}

func (h *AuthHandler) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var requestPayload OTPRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	if err := h.service.RequestOTP(r.Context(), requestPayload.Email); err != nil {
		respondWithServiceError(w, err, "Failed to send login code")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "If an account exists for this email, a login code has been sent",
	})
}

func (h *AuthHandler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var requestPayload OTPVerifyRequest
	if !decodeAndValidate(w, r, h.validate, &requestPayload) {
		return
	}

	a, err := h.service.VerifyOTP(r.Context(), requestPayload.Email, requestPayload.Code)
	if err != nil {
		respondWithServiceError(w, err, "Failed to verify login code")
		return
	}

	h.startSession(w, a, http.StatusOK)
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	h.tokens.ClearCookie(w)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (h *AuthHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}

	a, err := h.service.GetAccount(r.Context(), id.UserID)
	if err != nil {
		respondWithServiceError(w, err, "Failed to get current user")
		return
	}

	respondWithJSON(w, http.StatusOK, newAccountResponse(a))
}
