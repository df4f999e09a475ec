package payment

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/stripe-payments-demo/internal/common"
)

// Handler exposes HTTP endpoints for payment intents and status polling.
type Handler struct {
	Svc *Service
}

type intentResp struct {
	PaymentIntent any `json:"paymentIntent"`
}

// Create handles POST /payment_intents.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	pi, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, intentResp{PaymentIntent: pi})
}

// UpdateQuantity handles POST /payment_intents/{id}/update_quantity.
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.intentID(w, r)
	if !ok {
		return
	}
	var in UpdateQuantityInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	pi, err := h.Svc.UpdateQuantity(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, intentResp{PaymentIntent: pi})
}

// ShippingChange handles POST /payment_intents/{id}/shipping_change.
func (h *Handler) ShippingChange(w http.ResponseWriter, r *http.Request) {
	id, ok := h.intentID(w, r)
	if !ok {
		return
	}
	var in ShippingChangeInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	pi, err := h.Svc.ShippingChange(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, intentResp{PaymentIntent: pi})
}

// UpdateCurrency handles POST /payment_intents/{id}/update_currency.
func (h *Handler) UpdateCurrency(w http.ResponseWriter, r *http.Request) {
	id, ok := h.intentID(w, r)
	if !ok {
		return
	}
	var in UpdateCurrencyInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	pi, err := h.Svc.UpdateCurrency(r.Context(), id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, intentResp{PaymentIntent: pi})
}

// Status handles GET /payment_intents/{id}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.intentID(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, intentResp{PaymentIntent: view})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h == nil || h.Svc == nil || h.Svc.Provider == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return false
	}
	return true
}

func (h *Handler) intentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !h.ready(w) {
		return "", false
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "payment intent id is required", nil)
		return "", false
	}
	return id, true
}
