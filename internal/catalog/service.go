package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/stripe-payments-demo/internal/config"
)

// ErrNotFound is returned when a product, its price or a shipping option does
// not exist. Callers must handle it explicitly.
var ErrNotFound = errors.New("catalog: not found")

// ErrShippingOptionNotFound narrows ErrNotFound to shipping option lookups.
var ErrShippingOptionNotFound = fmt.Errorf("shipping option: %w", ErrNotFound)

// Price is the current unit price of a product in minor currency units.
type Price struct {
	ID         string `json:"id"`
	UnitAmount int64  `json:"unit_amount"`
	Currency   string `json:"currency"`
}

// Product is the public product payload.
type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Images      []string          `json:"images"`
	Price       *Price            `json:"price,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Source reads products from the system of record.
type Source interface {
	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (Product, error)
}

// JSONCache stores listing responses.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any) error
}

// Service serves products and shipping options. Listing reads may be cached;
// Price always goes to the source.
type Service struct {
	source   Source
	cache    JSONCache
	shipping []config.ShippingOption
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Source   Source
	Cache    JSONCache
	Shipping []config.ShippingOption
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	shipping := make([]config.ShippingOption, len(cfg.Shipping))
	copy(shipping, cfg.Shipping)
	return &Service{source: cfg.Source, cache: cfg.Cache, shipping: shipping}, nil
}

const listCacheKey = "catalog:products"

func productCacheKey(id string) string {
	return "catalog:product:" + id
}

// ListProducts returns every active product.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	if s.cache != nil {
		var cached []Product
		if ok, err := s.cache.GetJSON(ctx, listCacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}
	items, err := s.source.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if items == nil {
		items = []Product{}
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, listCacheKey, items)
	}
	return items, nil
}

// GetProduct returns a single product.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, fmt.Errorf("product %q: %w", id, ErrNotFound)
	}
	key := productCacheKey(id)
	if s.cache != nil {
		var cached Product
		if ok, err := s.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			return cached, nil
		}
	}
	p, err := s.source.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, p)
	}
	return p, nil
}

// Price looks up the current price of a product, bypassing the cache.
func (s *Service) Price(ctx context.Context, productID string) (Price, error) {
	p, err := s.source.GetProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		return Price{}, err
	}
	if p.Price == nil {
		return Price{}, fmt.Errorf("price for product %q: %w", productID, ErrNotFound)
	}
	return *p.Price, nil
}

// ShippingOption resolves a configured shipping option by id.
func (s *Service) ShippingOption(id string) (config.ShippingOption, error) {
	for _, opt := range s.shipping {
		if opt.ID == id {
			return opt, nil
		}
	}
	return config.ShippingOption{}, fmt.Errorf("%q: %w", id, ErrShippingOptionNotFound)
}
