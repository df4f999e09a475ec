// Package stripeapi builds the shared Stripe API backend and maps provider
// failures onto the API's error taxonomy.
package stripeapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/stripe-payments-demo/internal/common"
	"github.com/noah-isme/stripe-payments-demo/internal/obs"
	"github.com/noah-isme/stripe-payments-demo/internal/resilience"
)

// Options configures the outbound Stripe client.
type Options struct {
	SecretKey string
	Timeout   time.Duration
	Breaker   *resilience.Breaker
	Logger    zerolog.Logger
	// URL overrides the API base URL, used by tests to point at httptest servers.
	URL string
}

// Client bundles the backend with the secret key every resource client needs.
type Client struct {
	Backend stripe.Backend
	Key     string
}

// New builds a Stripe backend that never retries. Requests go through the
// circuit breaker and are traced with otelhttp.
func New(opts Options) Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 80 * time.Second
	}
	var rt http.RoundTripper = http.DefaultTransport
	if opts.Breaker != nil {
		rt = resilience.Transport{Base: rt, Breaker: opts.Breaker}
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(rt),
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        httpClient,
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     obs.StripeLogger{Logger: opts.Logger},
	}
	if opts.URL != "" {
		cfg.URL = stripe.String(opts.URL)
	}
	return Client{
		Backend: stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Key:     opts.SecretKey,
	}
}

// IsNotFound reports whether err is Stripe's resource_missing error.
func IsNotFound(err error) bool {
	var se *stripe.Error
	if errors.As(err, &se) {
		return se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound
	}
	return false
}

// Message extracts the provider's human readable message from err.
func Message(err error) string {
	var se *stripe.Error
	if errors.As(err, &se) && se.Msg != "" {
		return se.Msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// AppError converts a failed provider call into the API error shape. An open
// breaker is reported as 503 and everything else as 500 with Stripe's message.
func AppError(err error) *common.AppError {
	if errors.Is(err, resilience.ErrOpenCircuit) {
		return common.NewAppError("PROVIDER_UNAVAILABLE", "payment provider temporarily unavailable", http.StatusServiceUnavailable, err)
	}
	return common.NewAppError("PROVIDER_ERROR", Message(err), http.StatusInternalServerError, err)
}
