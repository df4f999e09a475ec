package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/stripe-payments-demo/internal/pricing"
	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

// Input is the client request for a hosted checkout page. Either a single
// product line (Price, Quantity, ProductName) or a catalog basket in Items.
// Currency only applies to the single line and defaults to the service currency.
type Input struct {
	Currency    string          `json:"currency" validate:"omitempty,len=3"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity" validate:"omitempty,gt=0"`
	ProductName string          `json:"productName"`
	CampaignID  string          `json:"campaignId"`
	ProductID   string          `json:"productId"`
	Items       []pricing.Item  `json:"items" validate:"omitempty,dive"`
}

// ErrCurrencyRequired is returned for a single product line when neither the
// request nor the service names a currency.
var ErrCurrencyRequired = errors.New("checkout: currency is required")

// SessionCreator creates hosted checkout sessions.
type SessionCreator interface {
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeSessions implements SessionCreator on the Checkout Sessions API.
type StripeSessions struct {
	client *session.Client
}

// NewStripeSessions constructs StripeSessions on the shared backend.
func NewStripeSessions(c stripeapi.Client) *StripeSessions {
	return &StripeSessions{client: &session.Client{B: c.Backend, Key: c.Key}}
}

// CreateSession implements SessionCreator.
func (s *StripeSessions) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	return s.client.New(params)
}

// Service builds checkout sessions that carry the same correlation metadata
// as directly created payment intents.
type Service struct {
	Sessions SessionCreator
	Prices   pricing.PriceLookup
	BaseURL  string
	Currency string
}

// Create returns the URL of a new hosted checkout page.
func (s *Service) Create(ctx context.Context, in Input) (string, error) {
	if s == nil || s.Sessions == nil {
		return "", errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Create")
	defer span.End()

	lines, err := s.lineItems(ctx, in)
	if err != nil {
		return "", err
	}
	meta := pricing.Correlation{
		CampaignID: in.CampaignID,
		ProductID:  in.ProductID,
		Quantity:   in.Quantity,
		Items:      in.Items,
	}.Metadata()

	base := strings.TrimRight(s.BaseURL, "/")
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(base + "/?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(base + "/?canceled=true"),
		LineItems:  lines,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: meta,
		},
	}
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	sess, err := s.Sessions.CreateSession(ctx, params)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	span.SetAttributes(attribute.String("stripe.checkout_session.id", sess.ID))
	return sess.URL, nil
}

func (s *Service) lineItems(ctx context.Context, in Input) ([]*stripe.CheckoutSessionLineItemParams, error) {
	if len(in.Items) == 0 {
		currency := strings.ToLower(strings.TrimSpace(in.Currency))
		if currency == "" {
			currency = strings.ToLower(s.Currency)
		}
		if currency == "" {
			return nil, ErrCurrencyRequired
		}
		unit, err := pricing.MinorUnits(in.Price, 1)
		if err != nil {
			return nil, err
		}
		if in.Quantity <= 0 {
			return nil, pricing.ErrInvalidQuantity
		}
		name := in.ProductName
		if name == "" {
			name = in.ProductID
		}
		return []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(unit),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(name)},
			},
			Quantity: stripe.Int64(in.Quantity),
		}}, nil
	}

	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(in.Items))
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("item %q: %w", it.ProductID, pricing.ErrInvalidQuantity)
		}
		price, err := s.Prices.Price(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("price item %q: %w", it.ProductID, err)
		}
		lines = append(lines, &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(price.ID),
			Quantity: stripe.Int64(it.Quantity),
		})
	}
	return lines, nil
}
