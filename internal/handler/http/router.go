package http

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/vasiliy-maslov/livestockmart/internal/auth"
)

type RouterConfig struct {
	AllowedOrigins []string
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix
	Tokens         *auth.Manager
	Auth           *AuthHandler
	State          *StateHandler
	Catalog        *CatalogHandler
	Orders         *OrderHandler
	Payments       *PaymentHandler
	// Health reports dependency readiness. A nil Health always reports ok.
	Health func() error
}

func NewRouter(cfg RouterConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(TrustedRealIP(cfg.TrustedProxies))
	router.Use(RequestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(); err != nil {
				respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	router.Route("/api", func(api chi.Router) {
		cfg.Auth.RegisterRoutes(api)
		cfg.Catalog.RegisterRoutes(api)
		cfg.Payments.RegisterWebhookRoutes(api)

		api.Group(func(user chi.Router) {
			user.Use(cfg.Tokens.Authenticate)
			cfg.State.RegisterRoutes(user)
			cfg.Orders.RegisterRoutes(user)
			cfg.Payments.RegisterRoutes(user)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(cfg.Tokens.Authenticate)
			admin.Use(auth.RequireAdmin)
			cfg.Catalog.RegisterAdminRoutes(admin)
			cfg.Orders.RegisterAdminRoutes(admin)
		})
	})

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(router)
}
