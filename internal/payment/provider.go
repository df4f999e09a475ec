package payment

import (
	"context"

	"github.com/stripe/stripe-go/v84"
)

// IntentParams carries the mutable fields of a payment intent. Zero values are
// left out of the request so updates only touch what the caller set.
type IntentParams struct {
	Amount             *int64
	Currency           string
	PaymentMethodTypes []string
	Metadata           map[string]string
	Description        string
}

// Provider abstracts the payment intent operations of the upstream processor.
// Implementations must not retry.
type Provider interface {
	CreateIntent(ctx context.Context, p IntentParams) (*stripe.PaymentIntent, error)
	UpdateIntent(ctx context.Context, id string, p IntentParams) (*stripe.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, id, sourceID string) (*stripe.PaymentIntent, error)
	CancelIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
}
