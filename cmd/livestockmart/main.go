package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/livestockmart/internal/account"
	"github.com/vasiliy-maslov/livestockmart/internal/auth"
	"github.com/vasiliy-maslov/livestockmart/internal/catalog"
	"github.com/vasiliy-maslov/livestockmart/internal/config"
	"github.com/vasiliy-maslov/livestockmart/internal/db"
	handler "github.com/vasiliy-maslov/livestockmart/internal/handler/http"
	"github.com/vasiliy-maslov/livestockmart/internal/notify"
	"github.com/vasiliy-maslov/livestockmart/internal/order"
	"github.com/vasiliy-maslov/livestockmart/internal/payment"
	"github.com/vasiliy-maslov/livestockmart/internal/storage"
)

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)
	log.Info().Str("env", cfg.App.Env).Str("storage", cfg.Storage.Driver).Msg("LivestockMart starting...")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	repos, err := storage.Open(startCtx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to storage")
	}
	defer repos.Close()

	redisClient, err := db.NewRedis(startCtx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to redis")
	}
	if redisClient != nil {
		defer func(c *redis.Client) {
			if err := c.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close redis client")
			}
		}(redisClient)
	}

	catalogSvc := catalog.NewService(repos.Catalog)

	accountOpts := []account.Option{account.WithOTPLogFallback(!cfg.IsProduction())}
	if redisClient != nil {
		accountOpts = append(accountOpts, account.WithOTPStore(account.NewRedisOTPStore(redisClient)))
	}
	if cfg.SMTP.Enabled() {
		accountOpts = append(accountOpts, account.WithMailer(notify.NewSMTPMailer(cfg.SMTP)))
	} else {
		log.Warn().Msg("SMTP is not configured, OTP codes will not be emailed")
	}
	accountSvc := account.NewService(repos.Accounts, catalogSvc, accountOpts...)

	// Gateways stay untyped nil when disabled so handlers see a nil interface.
	var (
		card     handler.CardGateway
		upi      handler.UPIGateway
		verifier payment.Verifier
	)
	if stripeGateway := payment.NewStripe(cfg.Stripe); stripeGateway != nil {
		card = stripeGateway
		verifier.Card = stripeGateway
	} else {
		log.Warn().Msg("Stripe is not configured, card payments are disabled")
	}
	if upiGateway := payment.NewUPI(cfg.UPI); upiGateway != nil {
		upi = upiGateway
	} else {
		log.Warn().Msg("UPI_VPA is not set, UPI payments are disabled")
	}

	hub := notify.NewHub(cfg.App.AllowedOrigins)
	defer hub.Close()
	publishers := notify.MultiPublisher{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create kafka publisher")
		}
		defer kafka.Close()
		publishers = append(publishers, kafka)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Publishing order events to Kafka")
	}

	orderSvc := order.NewService(repos.Orders,
		order.WithPaymentVerifier(verifier),
		order.WithEventPublisher(publishers),
	)

	tokens := auth.NewManager(cfg.Auth)
	limiter := handler.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	router := handler.NewRouter(handler.RouterConfig{
		AllowedOrigins: cfg.App.AllowedOrigins,
		TrustedProxies: cfg.App.TrustedProxies,
		Tokens:         tokens,
		Auth:           handler.NewAuthHandler(accountSvc, tokens, limiter),
		State:          handler.NewStateHandler(accountSvc),
		Catalog:        handler.NewCatalogHandler(catalogSvc),
		Orders:         handler.NewOrderHandler(orderSvc, hub),
		Payments:       handler.NewPaymentHandler(orderSvc, card, upi),
		Health: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return repos.Ping(ctx)
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("LivestockMart stopped")
}
