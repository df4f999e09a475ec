package storefront_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/stripe-payments-demo/internal/config"
	"github.com/noah-isme/stripe-payments-demo/internal/storefront"
)

func newRouter(cfg *config.Config) http.Handler {
	h := storefront.NewHandler(cfg)
	r := chi.NewRouter()
	r.Get("/", h.Index)
	r.Get("/static/*", h.Static)
	r.Get("/config", h.Config)
	return r
}

func TestConfigRoundTripsVerbatim(t *testing.T) {
	cfg := &config.Config{
		StripePublishableKey: "pk_test_123",
		StripeCountry:        "US",
		Country:              "DE",
		Currency:             "eur",
		PaymentMethods:       []string{"card", "ideal", "sepa_debit", "au_becs_debit"},
		ShippingOptions: []config.ShippingOption{
			{ID: "free", Label: "Free Shipping", Detail: "5 days", Amount: 0},
			{ID: "express", Label: "Express", Detail: "Next day", Amount: 1250},
		},
	}
	rr := httptest.NewRecorder()
	newRouter(cfg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got storefront.PublicConfig
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "pk_test_123", got.StripePublishableKey)
	require.Equal(t, cfg.PaymentMethods, got.PaymentMethods)
	require.Equal(t, cfg.ShippingOptions, got.ShippingOptions)
	require.NotContains(t, rr.Body.String(), "sk_")
}

func TestConfigIsSnapshotAtConstruction(t *testing.T) {
	cfg := &config.Config{PaymentMethods: []string{"card"}}
	router := newRouter(cfg)
	cfg.PaymentMethods[0] = "mutated"

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/config", nil))
	require.Contains(t, rr.Body.String(), `"card"`)
}

func TestIndexAndAssets(t *testing.T) {
	router := newRouter(&config.Config{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rr.Body.String(), "js.stripe.com/v3")

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/static/store.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}
