package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/stripe-payments-demo/internal/common"
	"github.com/noah-isme/stripe-payments-demo/internal/obs"
	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

// DefaultWebhookMaxBytes caps webhook payloads.
const DefaultWebhookMaxBytes int64 = 65536

// IntentActions are the orchestrator operations a webhook may trigger.
type IntentActions interface {
	Confirm(ctx context.Context, id, sourceID string) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}

// Webhook authenticates, classifies and dispatches provider events. There is
// no event-id ledger; duplicate deliveries are absorbed by Confirm's status
// precondition.
type Webhook struct {
	Intents    IntentActions
	Secret     string
	APIVersion string
	MaxBytes   int64
	Logger     zerolog.Logger
}

// Handle processes POST /webhook.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("payment.Webhook").Start(r.Context(), "PaymentWebhook.Handle")
	defer span.End()
	logger := h.loggerFor(ctx)

	maxBytes := h.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultWebhookMaxBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.count("unknown", "too_large")
			common.JSONError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "webhook payload too large", nil)
			return
		}
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}

	evt, err := h.authenticate(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		logger.Warn().Err(err).Msg("webhook_rejected")
		h.count("unknown", "invalid_signature")
		common.JSONError(w, http.StatusBadRequest, "INVALID_SIGNATURE", "webhook signature verification failed", nil)
		return
	}
	if h.APIVersion != "" && evt.APIVersion != "" && evt.APIVersion != h.APIVersion {
		logger.Warn().Str("event_api_version", evt.APIVersion).Str("pinned_api_version", h.APIVersion).Msg("webhook_api_version_mismatch")
	}

	classified, err := Classify(evt)
	if err != nil {
		logger.Warn().Err(err).Str("event_id", evt.ID).Msg("webhook_payload_invalid")
		h.count(string(evt.Type), "invalid_payload")
		common.JSONError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "unable to decode event object", nil)
		return
	}
	span.SetAttributes(
		attribute.String("stripe.event.id", evt.ID),
		attribute.String("stripe.event.type", string(evt.Type)),
		attribute.String("payment.webhook.kind", classified.Kind()),
	)

	if err := h.dispatch(ctx, logger, classified); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrInvalidState) {
			h.count(classified.Kind(), "invalid_state")
			common.JSONError(w, http.StatusForbidden, "INVALID_STATE", "payment intent is not awaiting a payment method", nil)
			return
		}
		h.count(classified.Kind(), "error")
		common.WriteError(w, stripeapi.AppError(err))
		return
	}
	h.count(classified.Kind(), "ack")
	common.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h Webhook) authenticate(body []byte, signature string) (stripe.Event, error) {
	if h.Secret == "" {
		var evt stripe.Event
		if err := json.Unmarshal(body, &evt); err != nil {
			return stripe.Event{}, err
		}
		return evt, nil
	}
	return webhook.ConstructEventWithOptions(body, signature, h.Secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func (h Webhook) dispatch(ctx context.Context, logger *zerolog.Logger, evt Event) error {
	switch e := evt.(type) {
	case IntentSucceeded:
		logger.Info().Str("event_id", e.EventID).Str("payment_intent_id", e.IntentID).Msg("payment_intent_succeeded")
	case IntentPaymentFailed:
		ev := logger.Warn().Str("event_id", e.EventID).Str("payment_intent_id", e.IntentID).Str("error_message", e.Message)
		if e.PaymentMethod != "" {
			ev = ev.Str("payment_method_id", e.PaymentMethod)
		}
		if e.Source != "" {
			ev = ev.Str("source_id", e.Source)
		}
		ev.Msg("payment_intent_failed")
	case SourceChargeable:
		if _, err := h.Intents.Confirm(ctx, e.IntentID, e.SourceID); err != nil {
			if errors.Is(err, ErrInvalidState) {
				logger.Info().Str("event_id", e.EventID).Str("payment_intent_id", e.IntentID).Str("source_id", e.SourceID).Msg("confirm_skipped_invalid_state")
			} else {
				logger.Error().Err(err).Str("event_id", e.EventID).Str("payment_intent_id", e.IntentID).Msg("confirm_failed")
			}
			return err
		}
		logger.Info().Str("event_id", e.EventID).Str("payment_intent_id", e.IntentID).Str("source_id", e.SourceID).Msg("payment_intent_confirmed")
	case SourceFailed:
		if _, err := h.Intents.Cancel(ctx, e.IntentID); err != nil {
			logger.Error().Err(err).Str("event_id", e.EventID).Str("payment_intent_id", e.IntentID).Msg("cancel_failed")
			return err
		}
		logger.Info().Str("event_id", e.EventID).Str("payment_intent_id", e.IntentID).Str("source_status", e.Status).Msg("payment_intent_canceled")
	case Unhandled:
		logger.Debug().Str("event_id", e.EventID).Str("event_type", e.Type).Str("object", e.Object).Msg("webhook_ignored")
	}
	return nil
}

func (h Webhook) count(kind, result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues(kind, result).Inc()
	}
}

func (h Webhook) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &h.Logger
}
