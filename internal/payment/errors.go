package payment

import (
	"errors"
	"net/http"

	"github.com/noah-isme/stripe-payments-demo/internal/catalog"
	"github.com/noah-isme/stripe-payments-demo/internal/common"
	"github.com/noah-isme/stripe-payments-demo/internal/pricing"
	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

func isLookupOrInput(err error) bool {
	return errors.Is(err, catalog.ErrNotFound) || errors.Is(err, pricing.ErrInvalidQuantity) ||
		errors.Is(err, pricing.ErrInvalidPrice) || common.IsAppError(err)
}

// toAppError maps orchestrator failures onto HTTP error codes.
func toAppError(err error) *common.AppError {
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, ErrInvalidState):
		return common.NewAppError("INVALID_STATE", "payment intent is not awaiting a payment method", http.StatusForbidden, err)
	case errors.Is(err, catalog.ErrShippingOptionNotFound):
		return common.NewAppError("SHIPPING_OPTION_NOT_FOUND", "shipping option not found", http.StatusNotFound, err)
	case errors.Is(err, catalog.ErrNotFound):
		return common.NewAppError("PRODUCT_NOT_FOUND", "product or price not found", http.StatusNotFound, err)
	case errors.Is(err, pricing.ErrInvalidQuantity):
		return common.BadRequest("VALIDATION_FAILED", "invalid request", map[string]string{"quantity": "gt"})
	case errors.Is(err, pricing.ErrInvalidPrice):
		return common.BadRequest("VALIDATION_FAILED", "invalid request", map[string]string{"price": "gt"})
	default:
		return stripeapi.AppError(err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, toAppError(err))
}
