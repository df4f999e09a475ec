package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ShippingOption is a fixed-price delivery choice offered to the storefront.
type ShippingOption struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Detail string `json:"detail"`
	Amount int64  `json:"amount"`
}

// Config holds application configuration loaded from the environment. It is
// built once at startup and handed to constructors; nothing mutates it afterwards.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	PublicBaseURL      string

	StripeSecretKey      string
	StripePublishableKey string
	StripeWebhookSecret  string
	StripeAPIVersion     string
	StripeCountry        string
	Country              string
	Currency             string

	PaymentMethods              []string
	CreationExcludedMethods     []string
	ShippingOptions             []ShippingOption
	CatalogCacheTTL             time.Duration
	IdempotencyTTL              time.Duration
	RateLimitWindow             time.Duration
	RateLimitMax                int
	ConfirmLockTTL              time.Duration
	ProviderTimeout             time.Duration
	ProviderBreakerMinRequests  int
	ProviderBreakerFailureRatio float64
	ProviderBreakerOpenFor      time.Duration
	WebhookMaxBodyBytes         int64
	RequestMaxBodyBytes         int64
	SecurityHeadersEnabled      bool
	SecurityHSTSEnabled         bool
}

// DefaultPaymentMethods mirrors the payment method types enabled on a fresh demo account.
var DefaultPaymentMethods = []string{
	"alipay", "bancontact", "card", "eps", "ideal", "giropay",
	"multibanco", "sofort", "wechat", "au_becs_debit", "sepa_debit", "p24",
}

// DefaultShippingOptions is used when SHIPPING_OPTIONS is unset.
var DefaultShippingOptions = []ShippingOption{
	{ID: "free", Label: "Free Shipping", Detail: "Delivery within 5 days", Amount: 0},
	{ID: "express", Label: "Express Shipping", Detail: "Next day delivery", Amount: 500},
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	shipping, err := parseShippingOptions(k.String("SHIPPING_OPTIONS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "4567"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		PublicBaseURL:      strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:4567"), "/"),

		StripeSecretKey:      strings.TrimSpace(k.String("STRIPE_SECRET_KEY")),
		StripePublishableKey: strings.TrimSpace(k.String("STRIPE_PUBLISHABLE_KEY")),
		StripeWebhookSecret:  strings.TrimSpace(k.String("STRIPE_WEBHOOK_SECRET")),
		StripeAPIVersion:     strings.TrimSpace(k.String("STRIPE_API_VERSION")),
		StripeCountry:        strings.ToUpper(valueOrDefault(k.String("STRIPE_ACCOUNT_COUNTRY"), "US")),
		Country:              strings.ToUpper(valueOrDefault(k.String("COUNTRY"), "US")),
		Currency:             strings.ToLower(valueOrDefault(k.String("CURRENCY"), "eur")),

		PaymentMethods:              listOrDefault(k.String("PAYMENT_METHODS"), DefaultPaymentMethods),
		CreationExcludedMethods:     listOrDefault(k.String("PAYMENT_METHODS_CREATE_EXCLUDE"), []string{"au_becs_debit"}),
		ShippingOptions:             shipping,
		CatalogCacheTTL:             parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		IdempotencyTTL:              parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow:             positiveDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:                parseInt(k.String("RATE_LIMIT_MAX"), 60),
		ConfirmLockTTL:              parseDuration(k.String("CONFIRM_LOCK_TTL"), "10s"),
		ProviderTimeout:             parseDuration(k.String("STRIPE_HTTP_TIMEOUT"), "80s"),
		ProviderBreakerMinRequests:  parseInt(k.String("STRIPE_BREAKER_MIN_REQUESTS"), 10),
		ProviderBreakerFailureRatio: parseFloat(k.String("STRIPE_BREAKER_FAILURE_RATIO"), 0.5),
		ProviderBreakerOpenFor:      parseDuration(k.String("STRIPE_BREAKER_OPEN_FOR"), "30s"),
		WebhookMaxBodyBytes:         int64(parseInt(k.String("WEBHOOK_MAX_BODY_BYTES"), 65536)),
		RequestMaxBodyBytes:         int64(parseInt(k.String("REQUEST_MAX_BODY_BYTES"), 1<<20)),
		SecurityHeadersEnabled:      parseBoolDefault(k.String("SECURITY_HEADERS_ENABLED"), true),
		SecurityHSTSEnabled:         parseBool(k.String("SECURITY_HSTS_ENABLED")),
	}

	if cfg.StripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripePublishableKey == "" {
		return nil, errors.New("STRIPE_PUBLISHABLE_KEY is required")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "4567"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// WebhookSigningEnabled reports whether inbound webhook payloads are signature checked.
func (c *Config) WebhookSigningEnabled() bool {
	return c.StripeWebhookSecret != ""
}

// CreationPaymentMethods returns the configured payment methods minus those
// that cannot be attached to an intent before its final currency is known.
func (c *Config) CreationPaymentMethods() []string {
	excluded := make(map[string]struct{}, len(c.CreationExcludedMethods))
	for _, m := range c.CreationExcludedMethods {
		excluded[m] = struct{}{}
	}
	out := make([]string, 0, len(c.PaymentMethods))
	for _, m := range c.PaymentMethods {
		if _, skip := excluded[m]; skip {
			continue
		}
		out = append(out, m)
	}
	return out
}

func parseShippingOptions(value string) ([]ShippingOption, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		out := make([]ShippingOption, len(DefaultShippingOptions))
		copy(out, DefaultShippingOptions)
		return out, nil
	}
	var opts []ShippingOption
	if err := json.Unmarshal([]byte(trimmed), &opts); err != nil {
		return nil, fmt.Errorf("parse SHIPPING_OPTIONS: %w", err)
	}
	seen := make(map[string]struct{}, len(opts))
	for _, opt := range opts {
		if strings.TrimSpace(opt.ID) == "" {
			return nil, errors.New("parse SHIPPING_OPTIONS: option id is required")
		}
		if opt.Amount < 0 {
			return nil, fmt.Errorf("parse SHIPPING_OPTIONS: negative amount for %q", opt.ID)
		}
		if _, dup := seen[opt.ID]; dup {
			return nil, fmt.Errorf("parse SHIPPING_OPTIONS: duplicate id %q", opt.ID)
		}
		seen[opt.ID] = struct{}{}
	}
	return opts, nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func listOrDefault(value string, fallback []string) []string {
	if parts := splitAndTrim(value); len(parts) > 0 {
		return parts
	}
	out := make([]string, len(fallback))
	copy(out, fallback)
	return out
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

// positiveDuration is parseDuration for settings where zero or negative
// values are meaningless.
func positiveDuration(value, fallback string) time.Duration {
	if d := parseDuration(value, fallback); d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
