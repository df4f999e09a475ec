// Package storefront serves the static shop page and the public client
// configuration it boots from.
package storefront

import (
	"embed"
	"io/fs"
	"net/http"

	"github.com/noah-isme/stripe-payments-demo/internal/common"
	"github.com/noah-isme/stripe-payments-demo/internal/config"
)

//go:embed static
var assets embed.FS

// PublicConfig is the browser-safe subset of the configuration.
type PublicConfig struct {
	StripePublishableKey string                  `json:"stripePublishableKey"`
	StripeCountry        string                  `json:"stripeCountry"`
	Country              string                  `json:"country"`
	Currency             string                  `json:"currency"`
	PaymentMethods       []string                `json:"paymentMethods"`
	ShippingOptions      []config.ShippingOption `json:"shippingOptions"`
}

// Handler serves GET /, /static/* and /config.
type Handler struct {
	public PublicConfig
	static http.Handler
}

// NewHandler snapshots the public configuration once.
func NewHandler(cfg *config.Config) *Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return &Handler{
		public: PublicConfig{
			StripePublishableKey: cfg.StripePublishableKey,
			StripeCountry:        cfg.StripeCountry,
			Country:              cfg.Country,
			Currency:             cfg.Currency,
			PaymentMethods:       append([]string{}, cfg.PaymentMethods...),
			ShippingOptions:      append([]config.ShippingOption{}, cfg.ShippingOptions...),
		},
		static: http.StripPrefix("/static/", http.FileServer(http.FS(sub))),
	}
}

// Index serves the storefront page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	page, err := assets.ReadFile("static/index.html")
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "storefront unavailable", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// Static serves the page's script and stylesheet.
func (h *Handler) Static(w http.ResponseWriter, r *http.Request) {
	h.static.ServeHTTP(w, r)
}

// Config serves GET /config.
func (h *Handler) Config(w http.ResponseWriter, _ *http.Request) {
	common.JSON(w, http.StatusOK, h.public)
}
