package pixel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pixel-relay/internal/config"
	"github.com/ignite/pixel-relay/internal/sink"
)

func testOptions() Options {
	return Options{
		Affiliation: "Example Shop",
		Mode:        IDModeVariant,
		Flags:       config.TrackingConfig{}.Flags(),
	}
}

func envelope(t *testing.T, name string, data any) *Envelope {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	return &Envelope{
		Name: name,
		Context: EventContext{
			Document: Document{
				Location: Location{Href: "https://shop.example.com/products/mug"},
				Referrer: "https://google.com",
				Title:    "Mug",
			},
		},
		Data: raw,
	}
}

func names(records []sink.Record) []string {
	var out []string
	for _, rec := range records {
		if name, ok := rec["event"].(string); ok {
			out = append(out, name)
		}
	}
	return out
}

func TestNormalizePageView(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "page_viewed", nil), false)

	require.Len(t, records, 1)
	assert.Equal(t, "page_view", records[0]["event"])
	assert.Equal(t, "https://shop.example.com/products/mug", records[0]["page_location"])
	assert.Equal(t, "https://google.com", records[0]["page_referrer"])
	assert.Equal(t, "Mug", records[0]["page_title"])
}

func TestNormalizeUnknownEventDropped(t *testing.T) {
	n := NewNormalizer(testOptions())
	assert.Nil(t, n.Normalize(envelope(t, "alert_displayed", nil), false))
}

func TestNormalizeDisabledEventDropped(t *testing.T) {
	opt := testOptions()
	off := false
	opt.Flags = config.TrackingConfig{PageViews: &off}.Flags()

	n := NewNormalizer(opt)
	assert.Nil(t, n.Normalize(envelope(t, "page_viewed", nil), false))
}

func TestNormalizeViewItem(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "product_viewed", map[string]any{
		"productVariant": map[string]any{
			"id":    "v1",
			"title": "Blue",
			"price": map[string]any{"amount": 29.99, "currencyCode": "USD"},
			"product": map[string]any{
				"id": "p1", "title": "Mug", "vendor": "Acme", "type": "Kitchen",
			},
		},
	}), false)

	// Remarketing disabled: exactly the namespace reset plus the event.
	require.Len(t, records, 2)
	assert.Equal(t, sink.Record{"ecommerce": nil}, records[0])

	ecom, ok := records[1]["ecommerce"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "view_item", records[1]["event"])
	assert.Equal(t, "USD", ecom["currency"])
	assert.Equal(t, 29.99, ecom["value"])

	items := ecom["items"].([]map[string]any)
	require.Len(t, items, 1)
	assert.Equal(t, "v1", items[0]["item_id"])
	assert.Equal(t, "Mug", items[0]["item_name"])
	assert.Equal(t, "Blue", items[0]["item_variant"])
	assert.Equal(t, 1, items[0]["quantity"])
}

func TestNormalizeViewItemRemarketingFragments(t *testing.T) {
	opt := testOptions()
	opt.Remarketing = RemarketingFlags{GoogleAds: true, Meta: true, Criteo: true}

	n := NewNormalizer(opt)
	records := n.Normalize(envelope(t, "product_viewed", map[string]any{
		"productVariant": map[string]any{
			"id":    "v1",
			"price": map[string]any{"amount": 29.99, "currencyCode": "USD"},
			"product": map[string]any{
				"id": "p1", "title": "Mug", "type": "Kitchen",
			},
		},
	}), false)

	// Reset + view_item, then reset + fragment per vendor.
	require.Len(t, records, 8)
	assert.Equal(t, []string{"view_item", "dynamic_remarketing", "meta_content", "criteo_items"}, names(records))

	// Each fragment record is preceded by its own namespace reset.
	assert.Equal(t, sink.Record{"google_tag_params": nil}, records[2])
	gtp := records[3]["google_tag_params"].(map[string]any)
	assert.Equal(t, []string{"v1"}, gtp["ecomm_prodid"])
	assert.Equal(t, "product", gtp["ecomm_pagetype"])
	assert.Equal(t, 29.99, gtp["ecomm_totalvalue"])

	assert.Equal(t, sink.Record{"meta": nil}, records[4])
	meta := records[5]["meta"].(map[string]any)
	assert.Equal(t, "product", meta["content_type"])
	assert.Equal(t, "Kitchen", meta["content_category"])
	assert.Equal(t, "USD", meta["currency"])

	assert.Equal(t, sink.Record{"criteo": nil}, records[6])
	criteo := records[7]["criteo"].(map[string]any)
	assert.Equal(t, 1, criteo["num_items"])
	assert.NotContains(t, criteo, "order_id")
}

func TestNormalizeViewItemList(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "collection_viewed", map[string]any{
		"collection": map[string]any{
			"id":    "c1",
			"title": "All Mugs",
			"productVariants": []map[string]any{
				{"id": "v1", "title": "Blue", "price": map[string]any{"amount": 10.0}},
				{"id": "v2", "title": "Red", "price": map[string]any{"amount": 12.0}},
			},
		},
	}), false)

	require.Len(t, records, 2)
	assert.Equal(t, "view_item_list", records[1]["event"])

	ecom := records[1]["ecommerce"].(map[string]any)
	assert.Equal(t, "c1", ecom["item_list_id"])
	assert.Equal(t, "All Mugs", ecom["item_list_name"])

	items := ecom["items"].([]map[string]any)
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0]["index"])
	assert.Equal(t, 1, items[1]["index"])
	assert.Equal(t, "c1", items[0]["item_list_id"])
	// Listing entries never carry a variant title.
	assert.NotContains(t, items[0], "item_variant")
}

func TestNormalizeSearch(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "search_submitted", map[string]any{
		"searchResult": map[string]any{"query": "blue mug"},
	}), false)

	require.Len(t, records, 1)
	assert.Equal(t, "view_search_results", records[0]["event"])
	assert.Equal(t, "blue mug", records[0]["search_term"])
}

func TestNormalizeFormSubmit(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "form_submitted", map[string]any{
		"element": map[string]any{"id": "newsletter", "action": "/contact"},
	}), false)

	require.Len(t, records, 1)
	assert.Equal(t, "form_submit", records[0]["event"])
	assert.Equal(t, "/contact", records[0]["form_action"])
	assert.Equal(t, "newsletter", records[0]["form_id"])
}

func TestNormalizeFormSubmitSuppressesCartAdd(t *testing.T) {
	n := NewNormalizer(testOptions())

	records := n.Normalize(envelope(t, "form_submitted", map[string]any{
		"element": map[string]any{"action": "/cart/add"},
	}), false)
	assert.Nil(t, records)

	// URL-encoded actions are decoded before the check.
	records = n.Normalize(envelope(t, "form_submitted", map[string]any{
		"element": map[string]any{"action": "https%3A%2F%2Fshop.example.com%2Fcart%2Fadd"},
	}), false)
	assert.Nil(t, records)
}

func TestNormalizeCheckoutClickRequiresCheckoutPage(t *testing.T) {
	n := NewNormalizer(testOptions())
	env := envelope(t, "clicked", map[string]any{
		"element": map[string]any{"id": "pay-now", "type": "button", "value": "Pay now"},
	})

	assert.Nil(t, n.Normalize(env, false))

	records := n.Normalize(env, true)
	require.Len(t, records, 1)
	assert.Equal(t, "custom_click_checkout", records[0]["event"])
	data := records[0]["data"].(map[string]any)
	assert.Equal(t, "pay-now", data["click_id"])
	assert.Equal(t, "Pay now", data["click_text"])
}

func TestNormalizeAddToCart(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "product_added_to_cart", map[string]any{
		"cartLine": map[string]any{
			"quantity": 3,
			"merchandise": map[string]any{
				"id":    "v1",
				"price": map[string]any{"amount": 10.0, "currencyCode": "USD"},
			},
			"cost": map[string]any{
				"totalAmount": map[string]any{"amount": 30.0, "currencyCode": "USD"},
			},
		},
	}), false)

	require.Len(t, records, 2)
	assert.Equal(t, "add_to_cart", records[1]["event"])
	ecom := records[1]["ecommerce"].(map[string]any)
	assert.Equal(t, 30.0, ecom["value"])
	items := ecom["items"].([]map[string]any)
	assert.Equal(t, 3, items[0]["quantity"])
}

func TestNormalizeRemoveFromCartSkipsRemarketing(t *testing.T) {
	opt := testOptions()
	opt.Remarketing = RemarketingFlags{GoogleAds: true, Meta: true, Criteo: true}

	n := NewNormalizer(opt)
	records := n.Normalize(envelope(t, "product_removed_from_cart", map[string]any{
		"cartLine": map[string]any{
			"quantity":    1,
			"merchandise": map[string]any{"id": "v1", "price": map[string]any{"amount": 10.0}},
			"cost":        map[string]any{"totalAmount": map[string]any{"amount": 10.0}},
		},
	}), false)

	require.Len(t, records, 2)
	assert.Equal(t, []string{"remove_from_cart"}, names(records))
}

func checkoutPayload() map[string]any {
	return map[string]any{
		"checkout": map[string]any{
			"currencyCode":    "USD",
			"totalPrice":      map[string]any{"amount": 120.0},
			"totalTax":        map[string]any{"amount": 10.0},
			"discountsAmount": map[string]any{"amount": 15.0},
			"shippingLine":    map[string]any{"price": map[string]any{"amount": 8.0}},
			"delivery": map[string]any{
				"selectedDeliveryOptions": []map[string]any{
					{
						"title":              "Standard",
						"cost":               map[string]any{"amount": 10.0},
						"costAfterDiscounts": map[string]any{"amount": 8.0},
					},
				},
			},
			"discountApplications": []map[string]any{{"title": "SUMMER"}},
			"lineItems": []map[string]any{
				{
					"quantity": 1,
					"variant": map[string]any{
						"id":    "v1",
						"price": map[string]any{"amount": 100.0},
					},
				},
			},
			"email":           "buyer@example.com",
			"shippingAddress": map[string]any{"city": "Portland", "country": "US"},
			"transactions":    []map[string]any{{"gateway": "shopify_payments"}},
			"order":           map[string]any{"id": "order-1"},
		},
	}
}

func TestNormalizeBeginCheckout(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "checkout_started", checkoutPayload()), true)

	require.Len(t, records, 2)
	assert.Equal(t, "begin_checkout", records[1]["event"])

	ecom := records[1]["ecommerce"].(map[string]any)
	// order value excludes shipping and tax: 120 - 8 - 10
	assert.Equal(t, 102.0, ecom["value"])
	assert.Equal(t, 15.0, ecom["discount"])
	assert.Equal(t, "SUMMER", ecom["coupon"])
	assert.NotContains(t, ecom, "shipping_tier")
	assert.NotContains(t, ecom, "tax")
	assert.NotContains(t, records[1], "user_email")
}

func TestNormalizeAddShippingInfo(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "checkout_shipping_info_submitted", checkoutPayload()), true)

	require.Len(t, records, 2)
	ecom := records[1]["ecommerce"].(map[string]any)
	assert.Equal(t, "Standard", ecom["shipping_tier"])
	assert.NotContains(t, ecom, "payment_type")
}

func TestNormalizePurchase(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "checkout_completed", checkoutPayload()), true)

	require.Len(t, records, 2)
	assert.Equal(t, "purchase", records[1]["event"])

	ecom := records[1]["ecommerce"].(map[string]any)
	assert.Equal(t, 102.0, ecom["value"])
	assert.Equal(t, 10.0, ecom["tax"])
	assert.Equal(t, 8.0, ecom["shipping"])
	assert.Equal(t, "Standard", ecom["shipping_tier"])
	assert.Equal(t, "shopify_payments", ecom["payment_type"])
	assert.Equal(t, "order-1", ecom["transaction_id"])

	assert.Equal(t, "buyer@example.com", records[1]["user_email"])
	user := records[1]["user_data"].(map[string]any)
	assert.Equal(t, "Portland", user["city"])
}

func TestNormalizePurchaseWithoutTransaction(t *testing.T) {
	payload := checkoutPayload()
	checkout := payload["checkout"].(map[string]any)
	delete(checkout, "transactions")
	delete(checkout, "order")

	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "checkout_completed", payload), true)

	require.Len(t, records, 2)
	ecom := records[1]["ecommerce"].(map[string]any)
	assert.Equal(t, "no payment type", ecom["payment_type"])
	assert.NotContains(t, ecom, "transaction_id")
}

func TestNormalizePurchaseRemarketingCarriesOrderID(t *testing.T) {
	opt := testOptions()
	opt.Remarketing = RemarketingFlags{Criteo: true, GoogleAds: true}

	n := NewNormalizer(opt)
	records := n.Normalize(envelope(t, "checkout_completed", checkoutPayload()), true)

	require.Len(t, records, 6)
	gtp := records[3]["google_tag_params"].(map[string]any)
	assert.Equal(t, "purchase", gtp["ecomm_pagetype"])

	criteo := records[5]["criteo"].(map[string]any)
	assert.Equal(t, "order-1", criteo["order_id"])
}

func TestNormalizeCustomClicks(t *testing.T) {
	n := NewNormalizer(testOptions())

	env := envelope(t, "custom_click", nil)
	env.CustomData = map[string]any{"element_id": "hero-cta"}
	records := n.Normalize(env, false)
	require.Len(t, records, 1)
	assert.Equal(t, "custom_click_storefront", records[0]["event"])
	assert.Equal(t, env.CustomData, records[0]["data"])

	env = envelope(t, "custom_link_click", nil)
	records = n.Normalize(env, false)
	require.Len(t, records, 1)
	assert.Equal(t, "custom_click_link_storefront", records[0]["event"])
}

func TestNormalizeViewCart(t *testing.T) {
	n := NewNormalizer(testOptions())
	records := n.Normalize(envelope(t, "cart_viewed", map[string]any{
		"cart": map[string]any{
			"lines": []map[string]any{
				{"quantity": 2, "merchandise": map[string]any{"id": "v1", "price": map[string]any{"amount": 10.0}}},
				{"quantity": 1, "merchandise": map[string]any{"id": "v2", "price": map[string]any{"amount": 5.0}}},
			},
			"cost": map[string]any{"totalAmount": map[string]any{"amount": 25.0, "currencyCode": "USD"}},
		},
	}), false)

	require.Len(t, records, 2)
	assert.Equal(t, "view_cart", records[1]["event"])
	ecom := records[1]["ecommerce"].(map[string]any)
	assert.Equal(t, 25.0, ecom["value"])
	items := ecom["items"].([]map[string]any)
	require.Len(t, items, 2)
	assert.Equal(t, 0, items[0]["index"])
	assert.Equal(t, 1, items[1]["index"])
}

func TestNormalizeMalformedDataDegrades(t *testing.T) {
	n := NewNormalizer(testOptions())

	env := envelope(t, "product_viewed", nil)
	env.Data = json.RawMessage(`{"productVariant": "not-an-object"`)
	records := n.Normalize(env, false)

	// Unparsable payload yields a partial record, never a panic or drop.
	require.Len(t, records, 2)
	assert.Equal(t, "view_item", records[1]["event"])
}
