package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/stripe-payments-demo/internal/catalog"
	"github.com/noah-isme/stripe-payments-demo/internal/config"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// ErrInvalidQuantity is returned for non-positive line item quantities.
var ErrInvalidQuantity = errors.New("pricing: quantity must be positive")

// ErrInvalidPrice is returned for missing, non-positive or out of range unit prices.
var ErrInvalidPrice = errors.New("pricing: invalid unit price")

var hundred = decimal.NewFromInt(100)

// Item describes a basket line.
type Item struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"gt=0"`
}

// PriceLookup resolves the current price of a product.
type PriceLookup interface {
	Price(ctx context.Context, productID string) (catalog.Price, error)
}

// ShippingLookup resolves a shipping surcharge.
type ShippingLookup interface {
	ShippingOption(id string) (config.ShippingOption, error)
}

// Calculator derives basket totals from live catalog prices.
type Calculator struct {
	Prices   PriceLookup
	Shipping ShippingLookup
}

// Total returns Σ price × quantity over items. Every product is priced at call
// time; an unknown product or price fails the whole basket.
func (c Calculator) Total(ctx context.Context, items []Item) (Money, error) {
	var total Money
	for _, it := range items {
		if it.Quantity <= 0 {
			return 0, fmt.Errorf("item %q: %w", it.ProductID, ErrInvalidQuantity)
		}
		price, err := c.Prices.Price(ctx, it.ProductID)
		if err != nil {
			return 0, fmt.Errorf("price item %q: %w", it.ProductID, err)
		}
		total += price.UnitAmount * it.Quantity
	}
	return total, nil
}

// TotalWithShipping adds the surcharge of shippingID to the basket total.
func (c Calculator) TotalWithShipping(ctx context.Context, items []Item, shippingID string) (Money, error) {
	if c.Shipping == nil {
		return 0, fmt.Errorf("%q: %w", shippingID, catalog.ErrShippingOptionNotFound)
	}
	opt, err := c.Shipping.ShippingOption(shippingID)
	if err != nil {
		return 0, err
	}
	subtotal, err := c.Total(ctx, items)
	if err != nil {
		return 0, err
	}
	return subtotal + opt.Amount, nil
}

// MinorUnits converts a major-unit unit price to minor units and multiplies
// by quantity, so 10.00 × 2 is exactly 2000. Fractions of a minor unit are
// rounded half away from zero. A zero price is rejected: it is what a request
// without a price decodes to.
func MinorUnits(unitPrice decimal.Decimal, quantity int64) (Money, error) {
	if quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if !unitPrice.IsPositive() {
		return 0, ErrInvalidPrice
	}
	amount := unitPrice.Mul(decimal.NewFromInt(quantity)).Mul(hundred).Round(0)
	if amount.GreaterThan(decimal.NewFromInt(99_999_999_999)) {
		return 0, fmt.Errorf("%w: amount out of range", ErrInvalidPrice)
	}
	return amount.IntPart(), nil
}
