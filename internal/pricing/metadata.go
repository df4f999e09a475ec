package pricing

import (
	"strconv"
	"strings"
)

// Metadata keys written on intents and checkout sessions so the order context
// can be reconstructed from the provider alone.
const (
	MetaCampaignID = "campaignId"
	MetaProductID  = "productId"
	MetaQuantity   = "quantity"
	MetaItems      = "items"
)

// metadataValueMax is Stripe's limit on a single metadata value.
const metadataValueMax = 500

// Correlation is the origin of a payment: a single product line, a basket,
// or both.
type Correlation struct {
	CampaignID string
	ProductID  string
	Quantity   int64
	Items      []Item
}

// Metadata renders the correlation as provider metadata. For a basket the
// product ids are comma-joined in basket order, quantity is the total number
// of units and items lists "productId:quantity" pairs. Explicit ProductID and
// Quantity win over the basket-derived values. Values over the provider limit
// are left out rather than truncated.
func (c Correlation) Metadata() map[string]string {
	meta := map[string]string{}
	if c.CampaignID != "" {
		meta[MetaCampaignID] = c.CampaignID
	}

	productID, quantity := c.ProductID, c.Quantity
	if len(c.Items) > 0 {
		ids, units, lines := summarize(c.Items)
		if productID == "" {
			productID = ids
		}
		if quantity <= 0 {
			quantity = units
		}
		setBounded(meta, MetaItems, lines)
	}
	setBounded(meta, MetaProductID, productID)
	if quantity > 0 {
		meta[MetaQuantity] = strconv.FormatInt(quantity, 10)
	}
	return meta
}

func summarize(items []Item) (ids string, units int64, lines string) {
	seen := make(map[string]struct{}, len(items))
	idList := make([]string, 0, len(items))
	lineList := make([]string, 0, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			idList = append(idList, id)
		}
		units += it.Quantity
		lineList = append(lineList, id+":"+strconv.FormatInt(it.Quantity, 10))
	}
	return strings.Join(idList, ","), units, strings.Join(lineList, ",")
}

func setBounded(meta map[string]string, key, value string) {
	if value == "" || len(value) > metadataValueMax {
		return
	}
	meta[key] = value
}
