package pixel

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/ignite/pixel-relay/internal/config"
	"github.com/ignite/pixel-relay/internal/pkg/logger"
	"github.com/ignite/pixel-relay/internal/sink"
)

// Options carries the session-level normalization settings.
type Options struct {
	Affiliation string
	Mode        IDMode
	Prefix      string
	Country     string
	Flags       config.TrackFlags
	Remarketing RemarketingFlags
}

// RemarketingFlags enables vendor remarketing fragments per vendor.
type RemarketingFlags struct {
	GoogleAds bool
	Meta      bool
	Criteo    bool
}

// OptionsFromConfig projects the relay configuration onto normalizer
// options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Affiliation: cfg.Store.Affiliation,
		Mode:        IDMode(cfg.Identifiers.Mode),
		Prefix:      cfg.Identifiers.Prefix,
		Country:     cfg.Identifiers.Country,
		Flags:       cfg.Tracking.Flags(),
		Remarketing: RemarketingFlags{
			GoogleAds: cfg.Remarketing.GoogleAds,
			Meta:      cfg.Remarketing.Meta,
			Criteo:    cfg.Remarketing.Criteo,
		},
	}
}

// Normalizer maps inbound platform events onto canonical analytics
// records. One transform per event type; every transform reads the event's
// own page context and degrades to a partial record on missing fields
// rather than failing.
type Normalizer struct {
	opt Options
}

// NewNormalizer creates a normalizer with the given options.
func NewNormalizer(opt Options) *Normalizer {
	return &Normalizer{opt: opt}
}

func (n *Normalizer) lineOptions() LineOptions {
	return LineOptions{
		Affiliation: n.opt.Affiliation,
		Mode:        n.opt.Mode,
		Prefix:      n.opt.Prefix,
		Country:     n.opt.Country,
	}
}

// Normalize produces the data-layer records for one inbound event: the
// canonical record (preceded by its namespace reset where applicable)
// followed by any enabled vendor remarketing fragments. A nil result means
// the event is disabled, suppressed or unknown.
//
// checkoutPage selects the checkout-only click transform; all other
// transforms are page-independent.
func (n *Normalizer) Normalize(env *Envelope, checkoutPage bool) []sink.Record {
	f := n.opt.Flags
	switch env.Name {
	case "page_viewed":
		if !f.PageViews {
			return nil
		}
		return n.pageView(env)
	case "custom_click":
		if !f.Clicks {
			return nil
		}
		return n.customClick(env, "custom_click_storefront")
	case "custom_link_click":
		if !f.Clicks {
			return nil
		}
		return n.customClick(env, "custom_click_link_storefront")
	case "clicked":
		if !f.Clicks || !checkoutPage {
			return nil
		}
		return n.checkoutClick(env)
	case "search_submitted":
		if !f.Search {
			return nil
		}
		return n.search(env)
	case "form_submitted":
		if !f.FormSubmit {
			return nil
		}
		return n.formSubmit(env)
	case "collection_viewed":
		if !f.ViewItemList {
			return nil
		}
		return n.viewItemList(env)
	case "product_viewed":
		if !f.ViewItem {
			return nil
		}
		return n.viewItem(env)
	case "product_added_to_cart":
		if !f.AddToCart {
			return nil
		}
		return n.cartLineEvent(env, "add_to_cart", pagetypeCart, true)
	case "product_removed_from_cart":
		if !f.RemoveFromCart {
			return nil
		}
		return n.cartLineEvent(env, "remove_from_cart", pagetypeCart, false)
	case "cart_viewed":
		if !f.ViewCart {
			return nil
		}
		return n.viewCart(env)
	case "checkout_started":
		if !f.BeginCheckout {
			return nil
		}
		return n.checkoutStage(env, "begin_checkout")
	case "checkout_shipping_info_submitted":
		if !f.AddShippingInfo {
			return nil
		}
		return n.checkoutStage(env, "add_shipping_info")
	case "payment_info_submitted":
		if !f.AddPaymentInfo {
			return nil
		}
		return n.checkoutStage(env, "add_payment_info")
	case "checkout_completed":
		if !f.Purchase {
			return nil
		}
		return n.checkoutStage(env, "purchase")
	default:
		logger.Debug("unmapped inbound event", "name", env.Name)
		return nil
	}
}

func (n *Normalizer) pageView(env *Envelope) []sink.Record {
	ev := Event{Name: "page_view", Page: env.Page()}
	return []sink.Record{ev.Record()}
}

func (n *Normalizer) customClick(env *Envelope, name string) []sink.Record {
	ev := Event{
		Name:    name,
		Page:    env.Page(),
		Payload: map[string]any{"data": env.CustomData},
	}
	return []sink.Record{ev.Record()}
}

func (n *Normalizer) checkoutClick(env *Envelope) []sink.Record {
	var data clickData
	_ = json.Unmarshal(env.Data, &data)

	el := data.Element
	if el == nil {
		el = &ClickElement{}
	}
	ev := Event{
		Name: "custom_click_checkout",
		Page: env.Page(),
		Payload: map[string]any{
			"data": map[string]any{
				"click_element": el.Type,
				"click_id":      el.ID,
				"click_classes": "",
				"click_text":    el.Value,
				"click_target":  "",
				"click_url":     el.Href,
			},
		},
	}
	return []sink.Record{ev.Record()}
}

func (n *Normalizer) search(env *Envelope) []sink.Record {
	var data searchData
	_ = json.Unmarshal(env.Data, &data)

	query := ""
	if data.SearchResult != nil {
		query = data.SearchResult.Query
	}
	ev := Event{
		Name:    "view_search_results",
		Page:    env.Page(),
		Payload: map[string]any{"search_term": query},
	}
	return []sink.Record{ev.Record()}
}

func (n *Normalizer) formSubmit(env *Envelope) []sink.Record {
	var data formData
	_ = json.Unmarshal(env.Data, &data)

	el := data.Element
	if el == nil {
		el = &FormElement{}
	}

	// Add-to-cart forms fire the dedicated add_to_cart event already;
	// emitting form_submit too would double-count.
	decoded, err := url.QueryUnescape(el.Action)
	if err != nil {
		decoded = el.Action
	}
	if strings.Contains(decoded, "/cart/add") {
		logger.Debug("form_submit suppressed for add-to-cart form", "action", el.Action)
		return nil
	}

	ev := Event{
		Name: "form_submit",
		Page: env.Page(),
		Payload: map[string]any{
			"form_action": el.Action,
			"form_id":     el.ID,
		},
	}
	return []sink.Record{ev.Record()}
}

// variantItem builds the vendor-neutral item entry for a product variant.
func (n *Normalizer) variantItem(v *ProductVariant, quantity int) map[string]any {
	item := map[string]any{
		"quantity": quantity,
	}
	if n.opt.Affiliation != "" {
		item["affiliation"] = n.opt.Affiliation
	}
	if v == nil {
		item["price"] = 0.0
		return item
	}
	item["price"] = v.Price.Amount
	if id := ResolveItemID(v, n.opt.Mode, n.opt.Prefix, n.opt.Country); id != "" {
		item["item_id"] = id
	}
	if v.Product != nil {
		setIfPresent(item, "item_name", v.Product.Title)
		setIfPresent(item, "item_brand", v.Product.Vendor)
		setIfPresent(item, "item_category", v.Product.Type)
	}
	setIfPresent(item, "item_variant", v.Title)
	return item
}

func (n *Normalizer) viewItemList(env *Envelope) []sink.Record {
	var data collectionData
	_ = json.Unmarshal(env.Data, &data)

	coll := data.Collection
	if coll == nil {
		coll = &Collection{}
	}

	items := make([]map[string]any, 0, len(coll.ProductVariants))
	for idx := range coll.ProductVariants {
		v := &coll.ProductVariants[idx]
		item := n.variantItem(v, 1)
		delete(item, "item_variant")
		item["index"] = idx
		setIfPresent(item, "item_list_id", coll.ID)
		setIfPresent(item, "item_list_name", coll.Title)
		items = append(items, item)
	}

	ev := Event{
		Name: "view_item_list",
		Page: env.Page(),
		Payload: map[string]any{
			"ecommerce": map[string]any{
				"item_list_id":   coll.ID,
				"item_list_name": coll.Title,
				"items":          items,
			},
		},
	}

	recs := []sink.Record{ecommerceReset(), ev.Record()}
	return append(recs, n.fragments(fragmentInput{
		page:     env.Page(),
		pagetype: pagetypeCategory,
		items:    items,
		value:    itemsValue(items),
	})...)
}

func (n *Normalizer) viewItem(env *Envelope) []sink.Record {
	var data productViewData
	_ = json.Unmarshal(env.Data, &data)

	v := data.ProductVariant
	currency := ""
	value := 0.0
	if v != nil {
		currency = v.Price.CurrencyCode
		value = v.Price.Amount
	}
	items := []map[string]any{n.variantItem(v, 1)}

	ev := Event{
		Name: "view_item",
		Page: env.Page(),
		Payload: map[string]any{
			"ecommerce": map[string]any{
				"currency": currency,
				"value":    value,
				"items":    items,
			},
		},
	}

	recs := []sink.Record{ecommerceReset(), ev.Record()}
	return append(recs, n.fragments(fragmentInput{
		page:     env.Page(),
		pagetype: pagetypeProduct,
		items:    items,
		value:    value,
		currency: currency,
	})...)
}

// cartLineEvent handles add_to_cart and remove_from_cart, which share the
// cart-line payload shape. Only additions fan out remarketing fragments.
func (n *Normalizer) cartLineEvent(env *Envelope, name, pagetype string, remarket bool) []sink.Record {
	var data cartLineData
	_ = json.Unmarshal(env.Data, &data)

	line := data.CartLine
	if line == nil {
		line = &CartLine{Quantity: 1}
	}
	items := []map[string]any{n.variantItem(line.Merchandise, line.Quantity)}

	ev := Event{
		Name: name,
		Page: env.Page(),
		Payload: map[string]any{
			"ecommerce": map[string]any{
				"currency": line.Cost.TotalAmount.CurrencyCode,
				"value":    line.Cost.TotalAmount.Amount,
				"items":    items,
			},
		},
	}

	recs := []sink.Record{ecommerceReset(), ev.Record()}
	if !remarket {
		return recs
	}
	return append(recs, n.fragments(fragmentInput{
		page:     env.Page(),
		pagetype: pagetype,
		items:    items,
		value:    line.Cost.TotalAmount.Amount,
		currency: line.Cost.TotalAmount.CurrencyCode,
	})...)
}

func (n *Normalizer) viewCart(env *Envelope) []sink.Record {
	var data cartData
	_ = json.Unmarshal(env.Data, &data)

	cart := data.Cart
	if cart == nil {
		cart = &Cart{}
	}

	items := make([]map[string]any, 0, len(cart.Lines))
	for idx, line := range cart.Lines {
		item := n.variantItem(line.Merchandise, line.Quantity)
		item["index"] = idx
		items = append(items, item)
	}

	ev := Event{
		Name: "view_cart",
		Page: env.Page(),
		Payload: map[string]any{
			"ecommerce": map[string]any{
				"currency": cart.Cost.TotalAmount.CurrencyCode,
				"value":    cart.Cost.TotalAmount.Amount,
				"items":    items,
			},
		},
	}

	recs := []sink.Record{ecommerceReset(), ev.Record()}
	return append(recs, n.fragments(fragmentInput{
		page:     env.Page(),
		pagetype: pagetypeCart,
		items:    items,
		value:    cart.Cost.TotalAmount.Amount,
		currency: cart.Cost.TotalAmount.CurrencyCode,
	})...)
}

// checkoutStage handles begin_checkout, add_shipping_info,
// add_payment_info and purchase. Order totals are recomputed fresh per
// event; nothing is cached between stages.
func (n *Normalizer) checkoutStage(env *Envelope, name string) []sink.Record {
	var data checkoutData
	_ = json.Unmarshal(env.Data, &data)

	c := data.Checkout
	if c == nil {
		c = &Checkout{}
	}

	totalPrice := c.TotalPrice.Amount
	shipping := 0.0
	if c.ShippingLine != nil {
		shipping = c.ShippingLine.Price.Amount
	}
	tax := 0.0
	if c.TotalTax != nil {
		tax = c.TotalTax.Amount
	}
	orderDiscount := 0.0
	if c.DiscountsAmount != nil {
		orderDiscount = c.DiscountsAmount.Amount
	}
	shippingDiscount := 0.0
	if c.Delivery != nil {
		for _, opt := range c.Delivery.SelectedDeliveryOptions {
			shippingDiscount += opt.Cost.Amount - opt.CostAfterDiscounts.Amount
		}
	}
	orderValue := totalPrice - shipping - tax

	logger.Debug("checkout totals",
		"event", name,
		"discounts_amount", orderDiscount,
		"shipping_discount", shippingDiscount,
		"total_price", totalPrice,
		"shipping", shipping,
		"tax", tax,
		"order_value", orderValue,
	)

	items, _ := NormalizeCheckoutLines(c.LineItems, n.lineOptions())

	ecommerce := map[string]any{
		"currency": c.CurrencyCode,
		"value":    orderValue,
		"discount": orderDiscount,
		"items":    items,
	}
	if coupon := applicationCoupon(c.DiscountApplications); coupon != "" {
		ecommerce["coupon"] = coupon
	}

	payload := map[string]any{"ecommerce": ecommerce}

	switch name {
	case "add_shipping_info":
		if tier := shippingTier(c); tier != "" {
			ecommerce["shipping_tier"] = tier
		}
	case "purchase":
		if tier := shippingTier(c); tier != "" {
			ecommerce["shipping_tier"] = tier
		}
		ecommerce["tax"] = tax
		ecommerce["shipping"] = shipping
		ecommerce["payment_type"] = paymentType(c)
		if c.Order != nil {
			ecommerce["transaction_id"] = c.Order.ID
		}
		setIfPresent(payload, "user_email", c.Email)
		if c.ShippingAddress != nil {
			payload["user_data"] = c.ShippingAddress
		}
	}

	ev := Event{Name: name, Page: env.Page(), Payload: payload}

	in := fragmentInput{
		page:     env.Page(),
		pagetype: pagetypeCart,
		items:    items,
		value:    orderValue,
		currency: c.CurrencyCode,
	}
	if name == "purchase" {
		in.pagetype = pagetypePurchase
		if c.Order != nil {
			in.orderID = c.Order.ID
		}
	}

	recs := []sink.Record{ecommerceReset(), ev.Record()}
	return append(recs, n.fragments(in)...)
}

func ecommerceReset() sink.Record {
	return sink.Record{"ecommerce": nil}
}

func applicationCoupon(apps []DiscountApplication) string {
	var titles []string
	for _, app := range apps {
		if app.Title != "" {
			titles = append(titles, app.Title)
		}
	}
	return strings.Join(titles, ",")
}

func shippingTier(c *Checkout) string {
	if c.Delivery != nil && len(c.Delivery.SelectedDeliveryOptions) > 0 {
		return c.Delivery.SelectedDeliveryOptions[0].Title
	}
	return ""
}

func paymentType(c *Checkout) string {
	if len(c.Transactions) > 0 && c.Transactions[0].Gateway != "" {
		return c.Transactions[0].Gateway
	}
	return "no payment type"
}

func itemsValue(items []map[string]any) float64 {
	total := 0.0
	for _, item := range items {
		price, _ := item["price"].(float64)
		qty := 1
		if q, ok := item["quantity"].(int); ok {
			qty = q
		}
		total += price * float64(qty)
	}
	return total
}
