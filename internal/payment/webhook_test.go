package payment_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/noah-isme/stripe-payments-demo/internal/payment"
)

const testSecret = "whsec_test_secret"

func eventPayload(t *testing.T, id, typ string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":          id,
		"object":      "event",
		"api_version": stripe.APIVersion,
		"type":        typ,
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func signedRequest(t *testing.T, body []byte) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

type webhookHarness struct {
	provider *fakeProvider
	handler  payment.Webhook
	logs     *bytes.Buffer
}

func newWebhookHarness(secret string) *webhookHarness {
	fp := newFakeProvider()
	logs := &bytes.Buffer{}
	return &webhookHarness{
		provider: fp,
		logs:     logs,
		handler: payment.Webhook{
			Intents: newService(fp),
			Secret:  secret,
			Logger:  zerolog.New(logs),
		},
	}
}

func (h *webhookHarness) deliver(t *testing.T, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.handler.Handle(rr, signedRequest(t, body))
	return rr
}

func (h *webhookHarness) logCount(msg string) int {
	return strings.Count(h.logs.String(), `"message":"`+msg+`"`)
}

func sourceObject(id, status, intentID string) map[string]any {
	return map[string]any{
		"id":       id,
		"object":   "source",
		"status":   status,
		"metadata": map[string]string{"paymentIntent": intentID},
	}
}

func TestWebhookRejectsInvalidSignatureBeforeProviderCalls(t *testing.T) {
	h := newWebhookHarness(testSecret)
	h.provider.seed("pi_1", stripe.PaymentIntentStatusRequiresPaymentMethod)
	body := eventPayload(t, "evt_1", "source.chargeable", sourceObject("src_1", "chargeable", "pi_1"))

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rr := httptest.NewRecorder()
	h.handler.Handle(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_SIGNATURE")
	require.Zero(t, h.provider.total())

	rr = httptest.NewRecorder()
	h.handler.Handle(rr, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Zero(t, h.provider.total())
}

func TestWebhookConfirmsChargeableSource(t *testing.T) {
	h := newWebhookHarness(testSecret)
	h.provider.seed("pi_1", stripe.PaymentIntentStatusRequiresPaymentMethod)

	rr := h.deliver(t, eventPayload(t, "evt_1", "source.chargeable", sourceObject("src_1", "chargeable", "pi_1")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())
	require.Equal(t, []string{"pi_1"}, h.provider.callIDs("confirm"))
}

func TestWebhookReplayedChargeableSourceAfterSuccessIsForbidden(t *testing.T) {
	h := newWebhookHarness(testSecret)
	h.provider.seed("pi_1", stripe.PaymentIntentStatusRequiresPaymentMethod)
	body := eventPayload(t, "evt_1", "source.chargeable", sourceObject("src_1", "chargeable", "pi_1"))

	require.Equal(t, http.StatusOK, h.deliver(t, body).Code)

	h.provider.setStatus("pi_1", stripe.PaymentIntentStatusSucceeded)
	rr := h.deliver(t, body)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "INVALID_STATE")
	require.Equal(t, 1, h.provider.count("confirm"))
	require.Equal(t, 1, h.logCount("confirm_skipped_invalid_state"))
}

func TestWebhookSourceFailedCancelsCorrelatedIntentOnce(t *testing.T) {
	h := newWebhookHarness(testSecret)
	h.provider.seed("pi_x", stripe.PaymentIntentStatusRequiresPaymentMethod)
	h.provider.seed("pi_other", stripe.PaymentIntentStatusRequiresPaymentMethod)

	rr := h.deliver(t, eventPayload(t, "evt_2", "source.failed", sourceObject("src_9", "failed", "pi_x")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"pi_x"}, h.provider.callIDs("cancel"))
	require.Zero(t, h.provider.count("confirm"))
}

func TestWebhookSourceCanceledCancelsIntent(t *testing.T) {
	h := newWebhookHarness(testSecret)

	rr := h.deliver(t, eventPayload(t, "evt_3", "source.canceled", sourceObject("src_3", "canceled", "pi_c")))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, []string{"pi_c"}, h.provider.callIDs("cancel"))
}

func TestWebhookSucceededTwiceLogsTwiceWithoutWrites(t *testing.T) {
	h := newWebhookHarness(testSecret)
	body := eventPayload(t, "evt_4", "payment_intent.succeeded", map[string]any{
		"id":     "pi_s",
		"object": "payment_intent",
		"status": "succeeded",
	})

	for i := 0; i < 2; i++ {
		rr := h.deliver(t, body)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	require.Equal(t, 2, h.logCount("payment_intent_succeeded"))
	require.Zero(t, h.provider.mutations())
}

func TestWebhookPaymentFailedLogsPopulatedReference(t *testing.T) {
	h := newWebhookHarness(testSecret)
	body := eventPayload(t, "evt_5", "payment_intent.payment_failed", map[string]any{
		"id":     "pi_f",
		"object": "payment_intent",
		"status": "requires_payment_method",
		"last_payment_error": map[string]any{
			"message": "Your card was declined.",
			"source":  map[string]any{"id": "src_bad", "object": "source"},
		},
	})

	rr := h.deliver(t, body)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, h.logs.String(), `"source_id":"src_bad"`)
	require.NotContains(t, h.logs.String(), "payment_method_id")
	require.Zero(t, h.provider.total())
}

func TestWebhookUncorrelatedSourceIsIgnored(t *testing.T) {
	h := newWebhookHarness(testSecret)
	obj := sourceObject("src_1", "chargeable", "")
	delete(obj, "metadata")

	rr := h.deliver(t, eventPayload(t, "evt_6", "source.chargeable", obj))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Zero(t, h.provider.total())
}

func TestWebhookUpstreamFailureAsksForRedelivery(t *testing.T) {
	h := newWebhookHarness(testSecret)
	h.provider.failOn["cancel"] = &stripe.Error{Msg: "Rate limit exceeded"}

	rr := h.deliver(t, eventPayload(t, "evt_7", "source.failed", sourceObject("src_7", "failed", "pi_7")))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "Rate limit exceeded")
}

func TestWebhookWithoutSecretTrustsBody(t *testing.T) {
	h := newWebhookHarness("")
	h.provider.seed("pi_dev", stripe.PaymentIntentStatusRequiresPaymentMethod)
	body := eventPayload(t, "evt_8", "source.chargeable", sourceObject("src_dev", "chargeable", "pi_dev"))

	rr := httptest.NewRecorder()
	h.handler.Handle(rr, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1, h.provider.count("confirm"))
}

func TestWebhookBodyLimit(t *testing.T) {
	h := newWebhookHarness(testSecret)
	h.handler.MaxBytes = 16

	rr := h.deliver(t, eventPayload(t, "evt_9", "payment_intent.succeeded", map[string]any{"id": "pi", "object": "payment_intent"}))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	require.Zero(t, h.provider.total())
}
