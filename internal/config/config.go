package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	StorageDriverPostgres = "postgres"
	StorageDriverMongo    = "mongo"

	defaultJWTSecret = "livestockmart-dev-secret"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET is required in production")

type AppConfig struct {
	Name           string
	Port           string
	Env            string
	AllowedOrigins []string
	// TrustedProxies are the reverse proxies whose X-Forwarded-For header is
	// believed. Empty means the peer address is always used.
	TrustedProxies []netip.Prefix
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MigrationsPath  string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration
	CookieSecure bool
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// Enabled reports whether OTP mail delivery is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type UPIConfig struct {
	VPA       string
	PayeeName string
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

type StorageConfig struct {
	Driver string
}

type Config struct {
	App       AppConfig
	Storage   StorageConfig
	Postgres  PostgresConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	UPI       UPIConfig
	RateLimit RateLimitConfig
}

// IsProduction reports whether the service runs with production defaults
// (secure cookies, no OTP fallback logging).
func (c *Config) IsProduction() bool {
	return c.App.Env == EnvProduction
}

// NewConfig loads configuration from the environment. A .env file in the
// working directory (or the path in ENV_FILE) is applied first when present.
func NewConfig() (*Config, error) {
	envFile := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	return load()
}

func load() (*Config, error) {
	cfg := &Config{}

	cfg.App.Name = getEnv("APP_NAME", "livestockmart")
	cfg.App.Port = getEnv("APP_PORT", "5000")
	cfg.App.Env = strings.ToLower(getEnv("APP_ENV", EnvDevelopment))
	cfg.App.AllowedOrigins = getList("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	for _, raw := range getList("TRUSTED_PROXIES", nil) {
		prefix, err := parsePrefix(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", raw, err)
		}
		cfg.App.TrustedProxies = append(cfg.App.TrustedProxies, prefix)
	}

	cfg.Storage.Driver = strings.ToLower(getEnv("STORAGE_DRIVER", StorageDriverPostgres))
	if cfg.Storage.Driver != StorageDriverPostgres && cfg.Storage.Driver != StorageDriverMongo {
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.Storage.Driver)
	}

	var err error

	cfg.Postgres.Host = getEnv("DB_HOST", "localhost")
	cfg.Postgres.Port = getEnv("DB_PORT", "5432")
	cfg.Postgres.User = getEnv("DB_USER", "postgres")
	cfg.Postgres.Password = os.Getenv("DB_PASSWORD")
	cfg.Postgres.DBName = getEnv("DB_NAME", "livestockmart")
	cfg.Postgres.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Postgres.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", "migrations")

	maxConns, err := getInt("DB_MAX_CONNS", 10)
	if err != nil {
		return nil, err
	}
	minConns, err := getInt("DB_MIN_CONNS", 2)
	if err != nil {
		return nil, err
	}
	cfg.Postgres.MaxConns = int32(maxConns)
	cfg.Postgres.MinConns = int32(minConns)

	if cfg.Postgres.MaxConnLifetime, err = getDuration("DB_MAX_CONN_LIFETIME", time.Hour); err != nil {
		return nil, err
	}

	cfg.Mongo.URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = getEnv("MONGO_DATABASE", "livestockmart")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	cfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.Auth.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, ErrMissingJWTSecret
		}
		cfg.Auth.JWTSecret = defaultJWTSecret
	}
	if cfg.Auth.TokenTTL, err = getDuration("JWT_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	cfg.Auth.CookieSecure = cfg.IsProduction()

	cfg.SMTP.Host = os.Getenv("SMTP_HOST")
	cfg.SMTP.Port = getEnv("SMTP_PORT", "587")
	cfg.SMTP.Username = os.Getenv("SMTP_USER")
	cfg.SMTP.Password = os.Getenv("SMTP_PASS")
	cfg.SMTP.From = getEnv("SMTP_FROM", cfg.SMTP.Username)

	cfg.Kafka.Brokers = getList("KAFKA_BROKERS", nil)
	cfg.Kafka.Topic = getEnv("KAFKA_ORDER_TOPIC", "order-events")

	cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.Stripe.Currency = strings.ToLower(getEnv("STRIPE_CURRENCY", "inr"))

	cfg.UPI.VPA = os.Getenv("UPI_VPA")
	cfg.UPI.PayeeName = getEnv("UPI_PAYEE_NAME", "LivestockMart")

	if cfg.RateLimit.RequestsPerMinute, err = getInt("AUTH_RATE_LIMIT_PER_MINUTE", 20); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = getInt("AUTH_RATE_LIMIT_BURST", 5); err != nil {
		return nil, err
	}

	return cfg, nil
}

// parsePrefix accepts a CIDR or a bare address.
func parsePrefix(raw string) (netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Prefix{}, err
	}
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}
