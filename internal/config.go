package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	OpenAPIPath       string        `mapstructure:"openapi_path"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m"`
	SessionSecret       string        `mapstructure:"session_secret" validate:"required,min=32"`
}

type PaymentConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Price              string        `mapstructure:"price"`
	Currency           string        `mapstructure:"currency"`
	SuccessStatuses    []string      `mapstructure:"success_statuses"`
	EntitlementTTL     time.Duration `mapstructure:"entitlement_ttl"`
	StoreTimeout       time.Duration `mapstructure:"store_timeout"`
	CheckoutURL        string        `mapstructure:"checkout_url"`
	FeatureUpstreamURL string        `mapstructure:"feature_upstream_url"`
	ConfirmRateLimit   float64       `mapstructure:"confirm_rate_limit"`
	ExpirySweepCron    string        `mapstructure:"expiry_sweep_cron"`
	PayPal             PayPalConfig  `mapstructure:"paypal"`
}

type PayPalConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	APIBase      string `mapstructure:"api_base"`
	VerifyOrders bool   `mapstructure:"verify_orders"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	defaultPrice    = "6.00"
	defaultCurrency = "EUR"
)

var defaultSuccessStatuses = []string{"COMPLETED", "CAPTURED"}

// ----------------- LOADING -----------------

// LoadConfigFromEnv builds the config from plain environment variables, used
// for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			OpenAPIPath:       getEnv("OPENAPI_PATH", "./api/openapi.yml"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_URL", ""),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", 15*time.Minute),
			SessionSecret:       getEnv("SESSION_SECRET", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Payment: PaymentConfig{
			Enabled:            getEnvAsBool("PAYMENT_ENABLED", true),
			Price:              getEnv("PAYMENT_PRICE", defaultPrice),
			Currency:           getEnv("PAYMENT_CURRENCY", defaultCurrency),
			SuccessStatuses:    getEnvAsList("PAYMENT_SUCCESS_STATUSES", defaultSuccessStatuses),
			EntitlementTTL:     getEnvAsDuration("PAYMENT_ENTITLEMENT_TTL", 0),
			StoreTimeout:       getEnvAsDuration("PAYMENT_STORE_TIMEOUT", DefaultStoreTimeout),
			CheckoutURL:        getEnv("PAYMENT_CHECKOUT_URL", "/api/v1/payment/checkout"),
			FeatureUpstreamURL: getEnv("FEATURE_UPSTREAM_URL", ""),
			ConfirmRateLimit:   getEnvAsFloat("PAYMENT_CONFIRM_RATE_LIMIT", 5),
			ExpirySweepCron:    getEnv("PAYMENT_EXPIRY_SWEEP_CRON", "@every 1h"),
			PayPal: PayPalConfig{
				ClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
				ClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),
				APIBase:      getEnv("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"),
				VerifyOrders: getEnvAsBool("PAYPAL_VERIFY_ORDERS", false),
			},
		},
	}
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 characters")
	}
	if len(c.SessionSecret) < 32 {
		return errors.New("session secret must be at least 32 characters")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	if _, err := c.PriceAmount(); err != nil {
		return err
	}
	if _, err := currency.ParseISO(c.CurrencyCode()); err != nil {
		return fmt.Errorf("unknown currency %q: %w", c.Currency, err)
	}
	if c.StoreTimeout < 0 {
		return errors.New("store_timeout must not be negative")
	}
	if c.EntitlementTTL < 0 {
		return errors.New("entitlement_ttl must not be negative")
	}
	if c.FeatureUpstreamURL != "" {
		if _, err := url.ParseRequestURI(c.FeatureUpstreamURL); err != nil {
			return fmt.Errorf("invalid feature_upstream_url: %w", err)
		}
	}
	if c.PayPal.VerifyOrders && (c.PayPal.ClientID == "" || c.PayPal.ClientSecret == "") {
		return errors.New("paypal client_id and client_secret are required when verify_orders is set")
	}
	return nil
}

// PriceAmount returns the configured price, falling back to the default.
func (c *PaymentConfig) PriceAmount() (decimal.Decimal, error) {
	raw := c.Price
	if raw == "" {
		raw = defaultPrice
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q: %w", c.Price, err)
	}
	if price.IsNegative() {
		return decimal.Zero, errors.New("price must not be negative")
	}
	return price, nil
}

func (c *PaymentConfig) CurrencyCode() string {
	if c.Currency == "" {
		return defaultCurrency
	}
	return strings.ToUpper(c.Currency)
}

func (c *PaymentConfig) SuccessTokens() []string {
	if len(c.SuccessStatuses) == 0 {
		return defaultSuccessStatuses
	}
	return c.SuccessStatuses
}
