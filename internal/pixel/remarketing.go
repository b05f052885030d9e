package pixel

import "github.com/ignite/pixel-relay/internal/sink"

// Page types used by the dynamic-remarketing vertical field.
const (
	pagetypeCategory = "category"
	pagetypeProduct  = "product"
	pagetypeCart     = "cart"
	pagetypePurchase = "purchase"
)

// fragmentInput is the canonical slice of a normalized ecommerce event the
// vendor projections draw from.
type fragmentInput struct {
	page     PageContext
	pagetype string
	items    []map[string]any
	value    float64
	currency string
	orderID  string
}

// vendorProjection maps one vendor tag to its payload projection. The
// downstream queue shallow-merges records sharing a top-level key, so every
// fragment is preceded by a {namespace: null} reset; adding a vendor is a
// new table entry, not a new code path.
type vendorProjection struct {
	event     string
	namespace string
	enabled   func(RemarketingFlags) bool
	project   func(fragmentInput) map[string]any
}

var vendorProjections = []vendorProjection{
	{
		event:     "dynamic_remarketing",
		namespace: "google_tag_params",
		enabled:   func(f RemarketingFlags) bool { return f.GoogleAds },
		project: func(in fragmentInput) map[string]any {
			return map[string]any{
				"ecomm_prodid":     in.ids(),
				"ecomm_pagetype":   in.pagetype,
				"ecomm_totalvalue": in.value,
			}
		},
	},
	{
		event:     "meta_content",
		namespace: "meta",
		enabled:   func(f RemarketingFlags) bool { return f.Meta },
		project: func(in fragmentInput) map[string]any {
			return map[string]any{
				"content_type":     "product",
				"content_ids":      in.ids(),
				"value":            in.value,
				"currency":         in.currency,
				"content_category": in.firstCategory(),
			}
		},
	},
	{
		event:     "criteo_items",
		namespace: "criteo",
		enabled:   func(f RemarketingFlags) bool { return f.Criteo },
		project: func(in fragmentInput) map[string]any {
			lines := make([]map[string]any, 0, len(in.items))
			for _, item := range in.items {
				line := map[string]any{
					"id":       item["item_id"],
					"name":     item["item_name"],
					"category": item["item_category"],
					"price":    item["price"],
					"quantity": item["quantity"],
				}
				lines = append(lines, line)
			}
			payload := map[string]any{
				"num_items": in.totalQuantity(),
				"items":     lines,
			}
			if in.orderID != "" {
				payload["order_id"] = in.orderID
			}
			return payload
		},
	},
}

// fragments emits the enabled vendor fragments for one ecommerce event,
// each as its own record preceded by that vendor's namespace reset.
func (n *Normalizer) fragments(in fragmentInput) []sink.Record {
	var recs []sink.Record
	for _, p := range vendorProjections {
		if !p.enabled(n.opt.Remarketing) {
			continue
		}
		ev := Event{
			Name:    p.event,
			Page:    in.page,
			Payload: map[string]any{p.namespace: p.project(in)},
		}
		recs = append(recs, sink.Record{p.namespace: nil}, ev.Record())
	}
	return recs
}

func (in fragmentInput) ids() []string {
	ids := make([]string, 0, len(in.items))
	for _, item := range in.items {
		if id, ok := item["item_id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func (in fragmentInput) firstCategory() string {
	for _, item := range in.items {
		if cat, ok := item["item_category"].(string); ok && cat != "" {
			return cat
		}
	}
	return ""
}

func (in fragmentInput) totalQuantity() int {
	total := 0
	for _, item := range in.items {
		if q, ok := item["quantity"].(int); ok {
			total += q
		}
	}
	return total
}
