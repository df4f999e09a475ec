package payment

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	"github.com/noah-isme/stripe-payments-demo/internal/obs"
	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

// StripeProvider implements Provider on the Stripe PaymentIntents API.
type StripeProvider struct {
	intents *paymentintent.Client
}

// NewStripeProvider constructs a StripeProvider on the shared backend.
func NewStripeProvider(c stripeapi.Client) *StripeProvider {
	return &StripeProvider{intents: &paymentintent.Client{B: c.Backend, Key: c.Key}}
}

// CreateIntent implements Provider.
func (p *StripeProvider) CreateIntent(ctx context.Context, in IntentParams) (*stripe.PaymentIntent, error) {
	defer observeLatency("create", time.Now())
	return p.intents.New(intentParams(ctx, in))
}

// UpdateIntent implements Provider.
func (p *StripeProvider) UpdateIntent(ctx context.Context, id string, in IntentParams) (*stripe.PaymentIntent, error) {
	defer observeLatency("update", time.Now())
	return p.intents.Update(id, intentParams(ctx, in))
}

// RetrieveIntent implements Provider.
func (p *StripeProvider) RetrieveIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	defer observeLatency("retrieve", time.Now())
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return p.intents.Get(id, params)
}

// ConfirmIntent implements Provider.
func (p *StripeProvider) ConfirmIntent(ctx context.Context, id, sourceID string) (*stripe.PaymentIntent, error) {
	defer observeLatency("confirm", time.Now())
	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	// Sources are a legacy object and have no typed confirm field.
	params.AddExtra("source", sourceID)
	return p.intents.Confirm(id, params)
}

// CancelIntent implements Provider.
func (p *StripeProvider) CancelIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	defer observeLatency("cancel", time.Now())
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	return p.intents.Cancel(id, params)
}

func intentParams(ctx context.Context, in IntentParams) *stripe.PaymentIntentParams {
	params := &stripe.PaymentIntentParams{Amount: in.Amount}
	params.Context = ctx
	if in.Currency != "" {
		params.Currency = stripe.String(in.Currency)
	}
	if len(in.PaymentMethodTypes) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(in.PaymentMethodTypes)
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	return params
}

func observeLatency(operation string, start time.Time) {
	if obs.ProviderLatency != nil {
		obs.ProviderLatency.WithLabelValues(operation).Observe(obs.DurationMillis(time.Since(start)))
	}
}
