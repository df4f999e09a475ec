package payment_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/noah-isme/stripe-payments-demo/internal/payment"
)

func newPaymentRouter(fp *fakeProvider) http.Handler {
	h := &payment.Handler{Svc: newService(fp)}
	r := chi.NewRouter()
	r.Post("/payment_intents", h.Create)
	r.Post("/payment_intents/{id}/update_quantity", h.UpdateQuantity)
	r.Post("/payment_intents/{id}/shipping_change", h.ShippingChange)
	r.Post("/payment_intents/{id}/update_currency", h.UpdateCurrency)
	r.Get("/payment_intents/{id}/status", h.Status)
	return r
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCreateHandler(t *testing.T) {
	fp := newFakeProvider()
	router := newPaymentRouter(fp)

	rr := do(router, http.MethodPost, "/payment_intents",
		`{"currency":"usd","price":10.00,"quantity":2,"productName":"Shirt","campaignId":"c1","productId":"shirt"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		PaymentIntent stripe.PaymentIntent `json:"paymentIntent"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, int64(2000), body.PaymentIntent.Amount)
	require.Equal(t, "c1", body.PaymentIntent.Metadata["campaignId"])
}

func TestCreateHandlerValidation(t *testing.T) {
	fp := newFakeProvider()
	router := newPaymentRouter(fp)

	rr := do(router, http.MethodPost, "/payment_intents", `{"price":10,"quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_FAILED")
	require.Contains(t, rr.Body.String(), `"currency"`)

	rr = do(router, http.MethodPost, "/payment_intents", `{"currency":"usd","price":10}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(router, http.MethodPost, "/payment_intents", `{"currency":`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Zero(t, fp.total())
}

func TestCreateHandlerProviderError(t *testing.T) {
	fp := newFakeProvider()
	fp.failOn["create"] = &stripe.Error{Msg: "Amount must be at least $0.50 usd"}
	router := newPaymentRouter(fp)

	rr := do(router, http.MethodPost, "/payment_intents", `{"currency":"usd","price":0.1,"quantity":1}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "PROVIDER_ERROR")
	require.Contains(t, rr.Body.String(), "Amount must be at least $0.50 usd")
}

func TestShippingChangeHandlerNotFound(t *testing.T) {
	fp := newFakeProvider()
	fp.seed("pi_1", stripe.PaymentIntentStatusRequiresPaymentMethod)
	router := newPaymentRouter(fp)

	rr := do(router, http.MethodPost, "/payment_intents/pi_1/shipping_change",
		`{"items":[{"productId":"shirt","quantity":1}],"shippingOption":{"id":"drone"}}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "SHIPPING_OPTION_NOT_FOUND")

	rr = do(router, http.MethodPost, "/payment_intents/pi_1/shipping_change",
		`{"items":[{"productId":"ghost","quantity":1}],"shippingOption":{"id":"free"}}`)
	require.Equal(t, http.StatusNotFound, rr.Code)
	require.Contains(t, rr.Body.String(), "PRODUCT_NOT_FOUND")
	require.Zero(t, fp.count("update"))

	rr = do(router, http.MethodPost, "/payment_intents/pi_1/shipping_change",
		`{"items":[{"productId":"shirt","quantity":1}],"shippingOption":{"id":"express"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestUpdateQuantityWithoutPriceIsRejectedLocally(t *testing.T) {
	fp := newFakeProvider()
	fp.seed("pi_1", stripe.PaymentIntentStatusRequiresPaymentMethod)
	router := newPaymentRouter(fp)

	rr := do(router, http.MethodPost, "/payment_intents/pi_1/update_quantity", `{"quantity":3,"productId":"pins"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "VALIDATION_FAILED")
	require.Contains(t, rr.Body.String(), `"price"`)
	require.Zero(t, fp.count("update"))
}

func TestUpdateHandlers(t *testing.T) {
	fp := newFakeProvider()
	fp.seed("pi_1", stripe.PaymentIntentStatusRequiresPaymentMethod)
	router := newPaymentRouter(fp)

	rr := do(router, http.MethodPost, "/payment_intents/pi_1/update_quantity", `{"quantity":3,"price":"2.00","productId":"pins"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"amount":600`)

	rr = do(router, http.MethodPost, "/payment_intents/pi_1/update_currency", `{"currency":"gbp","payment_methods":["card"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"currency":"gbp"`)
}

func TestStatusHandler(t *testing.T) {
	fp := newFakeProvider()
	fp.seed("pi_1", stripe.PaymentIntentStatusRequiresAction)
	router := newPaymentRouter(fp)

	rr := do(router, http.MethodGet, "/payment_intents/pi_1/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"paymentIntent":{"status":"requires_action"}}`, rr.Body.String())

	rr = do(router, http.MethodGet, "/payment_intents/pi_missing/status", "")
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "No such payment_intent")
}
