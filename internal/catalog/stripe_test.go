package catalog_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/stripe-payments-demo/internal/catalog"
	"github.com/noah-isme/stripe-payments-demo/internal/resilience"
	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

const productJSON = `{"id":"prod_1","object":"product","active":%s,"name":"Shirt","description":"Cotton","images":["https://img/shirt.png"],"metadata":{"size":"M"},
"default_price":{"id":"price_1","object":"price","unit_amount":1999,"currency":"eur"}}`

func newStripeSource(t *testing.T, handler http.HandlerFunc) *catalog.StripeSource {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return catalog.NewStripeSource(stripeapi.New(stripeapi.Options{
		SecretKey: "sk_test_123",
		Breaker:   resilience.NewBreaker(5, 0.5, time.Minute),
		Logger:    zerolog.Nop(),
		URL:       srv.URL,
	}))
}

func expands(q url.Values) []string {
	var out []string
	for k, vs := range q {
		if strings.HasPrefix(k, "expand") {
			out = append(out, vs...)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestStripeSourceGetExpandsDefaultPrice(t *testing.T) {
	src := newStripeSource(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v1/products/prod_1", r.URL.Path)
		require.Equal(t, []string{"default_price"}, expands(r.URL.Query()))
		writeJSON(w, http.StatusOK, strings.Replace(productJSON, "%s", "true", 1))
	})

	p, err := src.GetProduct(context.Background(), "prod_1")
	require.NoError(t, err)
	require.Equal(t, "Shirt", p.Name)
	require.Equal(t, []string{"https://img/shirt.png"}, p.Images)
	require.Equal(t, "M", p.Metadata["size"])
	require.NotNil(t, p.Price)
	require.Equal(t, catalog.Price{ID: "price_1", UnitAmount: 1999, Currency: "eur"}, *p.Price)
}

func TestStripeSourceInactiveProductIsNotFound(t *testing.T) {
	src := newStripeSource(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, strings.Replace(productJSON, "%s", "false", 1))
	})

	_, err := src.GetProduct(context.Background(), "prod_1")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestStripeSourceMissingProductIsNotFound(t *testing.T) {
	src := newStripeSource(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such product: 'ghost'"}}`)
	})

	_, err := src.GetProduct(context.Background(), "ghost")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestStripeSourceListsActiveProducts(t *testing.T) {
	src := newStripeSource(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/products", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "true", q.Get("active"))
		require.Equal(t, "100", q.Get("limit"))
		require.Equal(t, []string{"data.default_price"}, expands(q))
		writeJSON(w, http.StatusOK, `{"object":"list","url":"/v1/products","has_more":false,"data":[`+
			strings.Replace(productJSON, "%s", "true", 1)+
			`,{"id":"prod_2","object":"product","active":true,"name":"Pins","images":[],"default_price":null}]}`)
	})

	products, err := src.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	require.Equal(t, "prod_1", products[0].ID)
	require.Equal(t, int64(1999), products[0].Price.UnitAmount)
	require.Equal(t, "prod_2", products[1].ID)
	require.Nil(t, products[1].Price)
	require.NotNil(t, products[1].Images)
}
