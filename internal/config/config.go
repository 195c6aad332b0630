package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort           string
	GRPCPort           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64
	TrustedProxies     []netip.Prefix

	DB       DBConfig
	Catalog  CatalogConfig
	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	OrdersTopic  string

	Stripe   StripeConfig
	Checkout CheckoutConfig
	Auth     AuthConfig
}

type DBConfig struct {
	Driver                string // "postgres" (lib/pq) or "pgx"
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	MigrationsPath        string
	LoyaltyMigrationsPath string
	ContentMigrationsPath string
}

type CatalogConfig struct {
	Path           string
	MigrationsPath string
	CacheTTL       time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type CheckoutConfig struct {
	SuccessURL       string
	CancelURL        string
	DefaultCurrency  string
	DefaultLocale    string
	SupportedLocales []string
	RateRPS          int
	RateBurst        int
}

type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	SessionCookie string
	SecureCookies bool
}

func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	proxies, err := parsePrefixes(splitList(getEnv("TRUSTED_PROXIES", "")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		GRPCPort:           getEnv("GRPC_PORT", "50057"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)), // 1MB
		TrustedProxies:     proxies,

		DB: DBConfig{
			Driver:                getEnv("DB_DRIVER", "postgres"),
			Host:                  getEnv("DB_HOST", "localhost"),
			Port:                  dbPort,
			User:                  getEnv("DB_USER", "postgres"),
			Password:              getEnv("DB_PASSWORD", "postgres"),
			Name:                  getEnv("DB_NAME", "elarca"),
			MigrationsPath:        getEnv("MIGRATIONS_PATH", "./internal/orders/migrations"),
			LoyaltyMigrationsPath: getEnv("LOYALTY_MIGRATIONS_PATH", "./internal/loyalty/migrations"),
			ContentMigrationsPath: getEnv("CONTENT_MIGRATIONS_PATH", "./internal/content/migrations"),
		},

		Catalog: CatalogConfig{
			Path:           getEnv("CATALOG_DB_PATH", "./catalog.db"),
			MigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),
			CacheTTL:       getEnvDuration("CATALOG_CACHE_TTL", 10*time.Minute),
		},
		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:  getEnv("MONGO_DB_NAME", "cartdb"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		OrdersTopic:  getEnv("ORDERS_TOPIC", "order-events"),

		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		Checkout: CheckoutConfig{
			SuccessURL:       getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:        getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/cart"),
			DefaultCurrency:  strings.ToLower(getEnv("DEFAULT_CURRENCY", "usd")),
			DefaultLocale:    getEnv("DEFAULT_LOCALE", "es"),
			SupportedLocales: splitList(getEnv("SUPPORTED_LOCALES", "es,en")),
			RateRPS:          getEnvInt("CHECKOUT_RATE_RPS", 5),
			RateBurst:        getEnvInt("CHECKOUT_RATE_BURST", 10),
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", ""),
			SessionTTL:    getEnvDuration("ADMIN_SESSION_TTL", 12*time.Hour),
			SessionCookie: getEnv("ADMIN_SESSION_COOKIE", "admin_session"),
			SecureCookies: getEnv("SECURE_COOKIES", "true") == "true",
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Stripe.SecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Checkout.DefaultCurrency) != 3 {
		return fmt.Errorf("DEFAULT_CURRENCY must be a 3-letter code, got %q", c.Checkout.DefaultCurrency)
	}
	if c.DB.Driver != "postgres" && c.DB.Driver != "pgx" {
		return fmt.Errorf("DB_DRIVER must be postgres or pgx, got %q", c.DB.Driver)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parsePrefixes accepts CIDRs and bare addresses, e.g. "10.0.0.0/8,192.168.1.7".
func parsePrefixes(items []string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, item := range items {
		if p, err := netip.ParsePrefix(item); err == nil {
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", item)
		}
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}
