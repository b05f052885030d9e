package pixel

import "strings"

// LineOptions carries the session-level settings the line normalizer
// stamps onto every line.
type LineOptions struct {
	Affiliation string
	Mode        IDMode
	Prefix      string
	Country     string
}

// NormalizeCheckoutLines turns raw checkout lines into analytics item
// entries and collects the order-level coupon label set (first-seen order,
// de-duplicated).
//
// Each line's unit price is the discount-adjusted price, floored at zero;
// its discount is the per-unit share of all allocated discounts. The coupon
// label on a line is the running join of all titles seen up to and
// including that line, so earlier lines can carry a narrower label than the
// final order set. Downstream dashboards were built against that behavior,
// so it is kept.
func NormalizeCheckoutLines(items []CheckoutLineItem, opt LineOptions) ([]map[string]any, string) {
	var orderCoupon []string
	lines := make([]map[string]any, 0, len(items))

	seen := func(title string) bool {
		for _, t := range orderCoupon {
			if t == title {
				return true
			}
		}
		return false
	}

	for idx, item := range items {
		itemDiscount := 0.0
		for _, alloc := range item.DiscountAllocations {
			if alloc.DiscountApplication != nil && alloc.DiscountApplication.Title != "" && !seen(alloc.DiscountApplication.Title) {
				orderCoupon = append(orderCoupon, alloc.DiscountApplication.Title)
			}
			itemDiscount += alloc.Amount.Amount
		}

		perUnit := 0.0
		if item.Quantity > 0 {
			perUnit = itemDiscount / float64(item.Quantity)
		}

		unitPrice := 0.0
		if item.Variant != nil {
			unitPrice = item.Variant.Price.Amount
		}
		price := unitPrice - perUnit
		if price < 0 {
			price = 0
		}

		line := map[string]any{
			"discount": perUnit,
			"index":    idx,
			"price":    price,
			"quantity": item.Quantity,
		}
		if opt.Affiliation != "" {
			line["affiliation"] = opt.Affiliation
		}
		if id := ResolveItemID(item.Variant, opt.Mode, opt.Prefix, opt.Country); id != "" {
			line["item_id"] = id
		}
		if item.Variant != nil {
			if item.Variant.Product != nil {
				setIfPresent(line, "item_name", item.Variant.Product.Title)
				setIfPresent(line, "item_brand", item.Variant.Product.Vendor)
				setIfPresent(line, "item_category", item.Variant.Product.Type)
			}
			setIfPresent(line, "item_variant", item.Variant.Title)
		}
		if len(orderCoupon) > 0 {
			line["coupon"] = strings.Join(orderCoupon, ",")
		}
		lines = append(lines, line)
	}

	return lines, strings.Join(orderCoupon, ",")
}

func setIfPresent(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}
