package catalog

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/product"

	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

// StripeSource reads products and their default prices from Stripe.
type StripeSource struct {
	products *product.Client
}

// NewStripeSource constructs a StripeSource on the shared backend.
func NewStripeSource(c stripeapi.Client) *StripeSource {
	return &StripeSource{products: &product.Client{B: c.Backend, Key: c.Key}}
}

// ListProducts implements Source.
func (s *StripeSource) ListProducts(ctx context.Context) ([]Product, error) {
	params := &stripe.ProductListParams{Active: stripe.Bool(true)}
	params.Context = ctx
	params.AddExpand("data.default_price")
	params.Limit = stripe.Int64(100)

	var out []Product
	it := s.products.List(params)
	for it.Next() {
		out = append(out, fromStripe(it.Product()))
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetProduct implements Source.
func (s *StripeSource) GetProduct(ctx context.Context, id string) (Product, error) {
	params := &stripe.ProductParams{}
	params.Context = ctx
	params.AddExpand("default_price")

	p, err := s.products.Get(id, params)
	if err != nil {
		if stripeapi.IsNotFound(err) {
			return Product{}, fmt.Errorf("product %q: %w", id, ErrNotFound)
		}
		return Product{}, err
	}
	if !p.Active {
		return Product{}, fmt.Errorf("product %q inactive: %w", id, ErrNotFound)
	}
	return fromStripe(p), nil
}

func fromStripe(p *stripe.Product) Product {
	out := Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Images:      p.Images,
		Metadata:    p.Metadata,
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	if dp := p.DefaultPrice; dp != nil && dp.ID != "" {
		out.Price = &Price{ID: dp.ID, UnitAmount: dp.UnitAmount, Currency: string(dp.Currency)}
	}
	return out
}
