package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/stripe-payments-demo/internal/config"
	"github.com/noah-isme/stripe-payments-demo/internal/obs"
	"github.com/noah-isme/stripe-payments-demo/internal/pricing"
)

// ErrInvalidState is returned by Confirm when the intent no longer awaits a
// payment method, typically because a duplicate delivery already confirmed it.
var ErrInvalidState = errors.New("payment: intent is not awaiting a payment method")

// Metadata keys written on every intent so its origin can be reconstructed.
const (
	MetaCampaignID  = pricing.MetaCampaignID
	MetaProductID   = pricing.MetaProductID
	MetaQuantity    = pricing.MetaQuantity
	MetaItems       = pricing.MetaItems
	MetaProductName = "productName"
)

// Locker serialises work on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Service orchestrates payment intents against the provider. It holds no
// payment state of its own.
type Service struct {
	Provider   Provider
	Calculator pricing.Calculator
	Config     *config.Config
	Locker     Locker
	LockTTL    time.Duration
}

// CreateInput is the client request for a new intent. When Items is set the
// amount is derived from live catalog prices instead of Price × Quantity.
type CreateInput struct {
	Currency    string          `json:"currency" validate:"required,len=3"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity" validate:"omitempty,gt=0"`
	ProductName string          `json:"productName"`
	CampaignID  string          `json:"campaignId"`
	ProductID   string          `json:"productId"`
	Items       []pricing.Item  `json:"items" validate:"omitempty,dive"`
}

// UpdateQuantityInput re-prices an intent for a new quantity.
type UpdateQuantityInput struct {
	Quantity   int64           `json:"quantity" validate:"gt=0"`
	Price      decimal.Decimal `json:"price"`
	ProductID  string          `json:"productId"`
	CampaignID string          `json:"campaignId"`
}

// ShippingOptionRef identifies the chosen shipping option.
type ShippingOptionRef struct {
	ID string `json:"id" validate:"required"`
}

// ShippingChangeInput re-prices an intent for a basket and shipping option.
type ShippingChangeInput struct {
	Items          []pricing.Item    `json:"items" validate:"required,min=1,dive"`
	ShippingOption ShippingOptionRef `json:"shippingOption"`
}

// UpdateCurrencyInput switches the intent currency and allowed methods.
type UpdateCurrencyInput struct {
	Currency       string   `json:"currency" validate:"required,len=3"`
	PaymentMethods []string `json:"payment_methods"`
}

// LastError is the client-visible part of the intent's last payment error.
type LastError struct {
	Message string `json:"message"`
}

// StatusView is the polled status of an intent.
type StatusView struct {
	Status           stripe.PaymentIntentStatus `json:"status"`
	LastPaymentError *LastError                 `json:"last_payment_error,omitempty"`
}

// Create opens a new intent.
func (s *Service) Create(ctx context.Context, in CreateInput) (*stripe.PaymentIntent, error) {
	var out *stripe.PaymentIntent
	err := s.track(ctx, "create", func(ctx context.Context) error {
		var amount int64
		var err error
		if len(in.Items) > 0 {
			amount, err = s.Calculator.Total(ctx, in.Items)
		} else {
			amount, err = pricing.MinorUnits(in.Price, in.Quantity)
		}
		if err != nil {
			return err
		}
		meta := pricing.Correlation{
			CampaignID: in.CampaignID,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			Items:      in.Items,
		}.Metadata()
		if in.ProductName != "" {
			meta[MetaProductName] = in.ProductName
		}
		out, err = s.Provider.CreateIntent(ctx, IntentParams{
			Amount:             stripe.Int64(amount),
			Currency:           strings.ToLower(in.Currency),
			PaymentMethodTypes: s.Config.CreationPaymentMethods(),
			Metadata:           meta,
			Description:        in.ProductName,
		})
		return err
	})
	return out, err
}

// UpdateQuantity re-sends amount and correlation metadata. Last writer wins.
func (s *Service) UpdateQuantity(ctx context.Context, id string, in UpdateQuantityInput) (*stripe.PaymentIntent, error) {
	var out *stripe.PaymentIntent
	err := s.track(ctx, "update_quantity", func(ctx context.Context) error {
		amount, err := pricing.MinorUnits(in.Price, in.Quantity)
		if err != nil {
			return err
		}
		out, err = s.Provider.UpdateIntent(ctx, id, IntentParams{
			Amount:   stripe.Int64(amount),
			Metadata: pricing.Correlation{
				CampaignID: in.CampaignID,
				ProductID:  in.ProductID,
				Quantity:   in.Quantity,
			}.Metadata(),
		})
		return err
	})
	return out, err
}

// ShippingChange re-prices the basket from live prices plus the shipping
// surcharge and re-sends the basket metadata. Keys not sent, such as
// campaignId, keep their value on the provider side.
func (s *Service) ShippingChange(ctx context.Context, id string, in ShippingChangeInput) (*stripe.PaymentIntent, error) {
	var out *stripe.PaymentIntent
	err := s.track(ctx, "shipping_change", func(ctx context.Context) error {
		amount, err := s.Calculator.TotalWithShipping(ctx, in.Items, in.ShippingOption.ID)
		if err != nil {
			return err
		}
		out, err = s.Provider.UpdateIntent(ctx, id, IntentParams{
			Amount:   stripe.Int64(amount),
			Metadata: pricing.Correlation{Items: in.Items}.Metadata(),
		})
		return err
	})
	return out, err
}

// UpdateCurrency re-sends currency and payment method types. An empty method
// list falls back to the full configured list.
func (s *Service) UpdateCurrency(ctx context.Context, id string, in UpdateCurrencyInput) (*stripe.PaymentIntent, error) {
	methods := in.PaymentMethods
	if len(methods) == 0 {
		methods = s.Config.PaymentMethods
	}
	var out *stripe.PaymentIntent
	err := s.track(ctx, "update_currency", func(ctx context.Context) error {
		var err error
		out, err = s.Provider.UpdateIntent(ctx, id, IntentParams{
			Currency:           strings.ToLower(in.Currency),
			PaymentMethodTypes: methods,
		})
		return err
	})
	return out, err
}

// Confirm attaches a chargeable source to the intent. It refuses with
// ErrInvalidState unless the intent is exactly requires_payment_method. The
// optional lock only serialises confirmations within this deployment; the
// status check remains the guard against duplicate deliveries.
func (s *Service) Confirm(ctx context.Context, id, sourceID string) (*stripe.PaymentIntent, error) {
	var out *stripe.PaymentIntent
	err := s.track(ctx, "confirm", func(ctx context.Context) error {
		confirm := func(ctx context.Context) error {
			pi, err := s.Provider.RetrieveIntent(ctx, id)
			if err != nil {
				return err
			}
			if pi.Status != stripe.PaymentIntentStatusRequiresPaymentMethod {
				return fmt.Errorf("%w: %s is %s", ErrInvalidState, id, pi.Status)
			}
			out, err = s.Provider.ConfirmIntent(ctx, id, sourceID)
			return err
		}
		if s.Locker == nil {
			return confirm(ctx)
		}
		return s.Locker.WithLock(ctx, "payment_intent:"+id, s.lockTTL(), confirm)
	})
	return out, err
}

// Cancel cancels the intent unconditionally.
func (s *Service) Cancel(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	var out *stripe.PaymentIntent
	err := s.track(ctx, "cancel", func(ctx context.Context) error {
		var err error
		out, err = s.Provider.CancelIntent(ctx, id)
		return err
	})
	return out, err
}

// Status reports the current status and last error message, if any.
func (s *Service) Status(ctx context.Context, id string) (StatusView, error) {
	var view StatusView
	err := s.track(ctx, "status", func(ctx context.Context) error {
		pi, err := s.Provider.RetrieveIntent(ctx, id)
		if err != nil {
			return err
		}
		view.Status = pi.Status
		if pi.LastPaymentError != nil {
			view.LastPaymentError = &LastError{Message: pi.LastPaymentError.Msg}
		}
		return nil
	})
	return view, err
}

func (s *Service) track(ctx context.Context, operation string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService."+operation)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	result := resultLabel(err)
	span.SetAttributes(
		attribute.String("payment.operation", operation),
		attribute.String("payment.result", result),
		attribute.Float64("payment.duration_ms", obs.DurationMillis(time.Since(start))),
	)
	if err != nil && result == "error" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if obs.PaymentIntentTotal != nil {
		obs.PaymentIntentTotal.WithLabelValues(operation, result).Inc()
	}
	return err
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL > 0 {
		return s.LockTTL
	}
	if s.Config != nil && s.Config.ConfirmLockTTL > 0 {
		return s.Config.ConfirmLockTTL
	}
	return 10 * time.Second
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case isLookupOrInput(err):
		return "rejected"
	default:
		return "error"
	}
}
