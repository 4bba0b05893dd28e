package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPricingHolder),
	fx.Invoke(func(cfg Config) error { return cfg.Validate() }),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Auth     AuthConfig
	Pricing  PricingConfig
	Provider ProviderConfig
	Payment  PaymentConfig
	Limiter  LimiterConfig
}

// AuthConfig configures token signing and lifetimes.
type AuthConfig struct {
	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// PricingConfig holds the per-token price and the multiplier applied on top of it.
type PricingConfig struct {
	UnitPrice  decimal.Decimal
	Multiplier decimal.Decimal
}

// ProviderConfig configures the upstream text generation endpoint.
type ProviderConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
}

// PaymentConfig selects the charger that backs deposits.
type PaymentConfig struct {
	Provider  string
	MaxCharge decimal.Decimal
}

// LimiterConfig configures the optional per-user in-flight request guard.
type LimiterConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration
	Rate          float64
	Burst         int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "tollgate"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "tollgate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		Auth: AuthConfig{
			JWTSecret:  strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			Issuer:     getenv("AUTH_JWT_ISSUER", "tollgate"),
			AccessTTL:  getenvDuration("AUTH_ACCESS_TTL", 60*time.Minute),
			RefreshTTL: getenvDuration("AUTH_REFRESH_TTL", 30*24*time.Hour),
		},
		Pricing: PricingConfig{
			UnitPrice:  getenvDecimal("PRICING_UNIT_PRICE", decimal.Zero),
			Multiplier: getenvDecimal("PRICING_MULTIPLIER", decimal.Zero),
		},
		Provider: ProviderConfig{
			BaseURL:   strings.TrimRight(getenv("PROVIDER_BASE_URL", "https://api.openai.com"), "/"),
			APIKey:    strings.TrimSpace(getenv("PROVIDER_API_KEY", "")),
			Model:     getenv("PROVIDER_MODEL", "gpt-3.5-turbo-instruct"),
			MaxTokens: getenvInt("PROVIDER_MAX_TOKENS", 10),
			Timeout:   getenvDuration("PROVIDER_TIMEOUT", 30*time.Second),
		},
		Payment: PaymentConfig{
			Provider:  strings.ToLower(getenv("PAYMENT_PROVIDER", "manual")),
			MaxCharge: getenvDecimal("PAYMENT_MAX_CHARGE", decimal.Zero),
		},
		Limiter: LimiterConfig{
			Enabled:       getenvBool("LIMITER_ENABLED", false),
			RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
			RedisDB:       getenvInt("REDIS_DB", 0),
			LockTTL:       getenvDuration("LIMITER_LOCK_TTL", 2*time.Minute),
			Rate:          getenvFloat("LIMITER_RATE", 0),
			Burst:         getenvInt("LIMITER_BURST", 0),
		},
	}

	if isDevEnv(cfg.Environment) {
		if cfg.Auth.JWTSecret == "" {
			cfg.Auth.JWTSecret = "dev-only-secret"
		}
		if cfg.Pricing.UnitPrice.IsZero() {
			cfg.Pricing.UnitPrice = decimal.RequireFromString("0.01")
		}
		if cfg.Pricing.Multiplier.IsZero() {
			cfg.Pricing.Multiplier = decimal.NewFromInt(3)
		}
	}

	return cfg
}

// Validate rejects configurations that would let the gateway run with guessed secrets or prices.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if err := c.Pricing.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !isDevEnv(c.Environment) && c.Provider.APIKey == "" {
		errs = append(errs, errors.New("PROVIDER_API_KEY is required"))
	}
	if c.Payment.MaxCharge.IsNegative() {
		errs = append(errs, errors.New("PAYMENT_MAX_CHARGE must not be negative"))
	}
	if c.Limiter.Enabled && c.Limiter.LockTTL <= 0 {
		errs = append(errs, errors.New("LIMITER_LOCK_TTL must be positive"))
	}
	if c.Limiter.Rate < 0 || (c.Limiter.Rate > 0 && c.Limiter.Burst <= 0) {
		errs = append(errs, errors.New("LIMITER_RATE needs a positive LIMITER_BURST"))
	}
	return errors.Join(errs...)
}

// Validate checks that both pricing factors are present and positive.
func (p PricingConfig) Validate() error {
	if !p.UnitPrice.IsPositive() {
		return fmt.Errorf("pricing unit price must be positive, got %s", p.UnitPrice)
	}
	if !p.Multiplier.IsPositive() {
		return fmt.Errorf("pricing multiplier must be positive, got %s", p.Multiplier)
	}
	return nil
}

func isDevEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		return def
	}
	return parsed
}
