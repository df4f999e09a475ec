package checkout

import (
	"errors"
	"net/http"

	"github.com/noah-isme/stripe-payments-demo/internal/catalog"
	"github.com/noah-isme/stripe-payments-demo/internal/common"
	"github.com/noah-isme/stripe-payments-demo/internal/pricing"
	"github.com/noah-isme/stripe-payments-demo/internal/stripeapi"
)

// Handler serves POST /create-checkout-session.
type Handler struct {
	Svc *Service
}

// CreateSession decodes the basket and responds with the hosted page URL.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	url, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "PRODUCT_NOT_FOUND", "product or price not found", nil)
	case errors.Is(err, pricing.ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request", map[string]string{"quantity": "gt"})
	case errors.Is(err, ErrCurrencyRequired):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request", map[string]string{"currency": "required"})
	case errors.Is(err, pricing.ErrInvalidPrice):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request", map[string]string{"price": "gt"})
	default:
		common.WriteError(w, stripeapi.AppError(err))
	}
}
