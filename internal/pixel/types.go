// Package pixel normalizes storefront lifecycle events into vendor-neutral
// analytics records and gates them behind a per-session consent decision
// before they reach the data-layer sink.
package pixel

import (
	"encoding/json"

	"github.com/ignite/pixel-relay/internal/sink"
)

// Envelope is one inbound platform event as delivered by the storefront
// beacon: a named event with its own document context plus an event-specific
// data payload.
type Envelope struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Timestamp  string          `json:"timestamp"`
	Context    EventContext    `json:"context"`
	Data       json.RawMessage `json:"data"`
	CustomData map[string]any  `json:"customData"`
}

// EventContext carries the document context captured when the event fired.
type EventContext struct {
	Document Document `json:"document"`
}

// Document mirrors the platform's document snapshot.
type Document struct {
	Location Location `json:"location"`
	Referrer string   `json:"referrer"`
	Title    string   `json:"title"`
}

// Location mirrors the platform's location snapshot.
type Location struct {
	Href string `json:"href"`
}

// PageContext is the page-scoped context derived once per inbound event
// from that event's own document, never from session-startup state.
type PageContext struct {
	Location string
	Referrer string
	Title    string
}

// Page derives the event's page context.
func (e *Envelope) Page() PageContext {
	return PageContext{
		Location: e.Context.Document.Location.Href,
		Referrer: e.Context.Document.Referrer,
		Title:    e.Context.Document.Title,
	}
}

// Event is one normalized analytics record before it is flattened into a
// data-layer entry. Immutable once built.
type Event struct {
	Name    string
	Page    PageContext
	Payload map[string]any
}

// Record flattens the event into a data-layer record.
func (e Event) Record() sink.Record {
	rec := sink.Record{
		"event":         e.Name,
		"page_location": e.Page.Location,
		"page_referrer": e.Page.Referrer,
		"page_title":    e.Page.Title,
	}
	for k, v := range e.Payload {
		rec[k] = v
	}
	return rec
}

// Money is a platform money bag.
type Money struct {
	Amount       float64 `json:"amount"`
	CurrencyCode string  `json:"currencyCode"`
}

// Product is the platform product node.
type Product struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Vendor string `json:"vendor"`
	Type   string `json:"type"`
}

// ProductVariant is the platform variant node, nested under cart lines,
// collection listings and checkout line items.
type ProductVariant struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	SKU     string   `json:"sku"`
	Price   Money    `json:"price"`
	Product *Product `json:"product"`
}

// CartLineCost is the platform cost bag on a cart line.
type CartLineCost struct {
	TotalAmount Money `json:"totalAmount"`
}

// CartLine is one line in the cart.
type CartLine struct {
	Merchandise *ProductVariant `json:"merchandise"`
	Quantity    int             `json:"quantity"`
	Cost        CartLineCost    `json:"cost"`
}

// Cart is the platform cart snapshot.
type Cart struct {
	Lines []CartLine   `json:"lines"`
	Cost  CartLineCost `json:"cost"`
}

// Collection is a product listing (collection page).
type Collection struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	ProductVariants []ProductVariant `json:"productVariants"`
}

// SearchResult carries the submitted search query.
type SearchResult struct {
	Query string `json:"query"`
}

// FormElement describes the submitted form.
type FormElement struct {
	ID     string `json:"id"`
	Action string `json:"action"`
}

// ClickElement describes the clicked element on checkout pages.
type ClickElement struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Href  string `json:"href"`
}

// DiscountApplication is the order-level discount a line allocation
// points back to.
type DiscountApplication struct {
	Title string `json:"title"`
}

// DiscountAllocation is one discount share allocated to a line item.
type DiscountAllocation struct {
	Amount              Money                `json:"amount"`
	DiscountApplication *DiscountApplication `json:"discountApplication"`
}

// CheckoutLineItem is one raw checkout line.
type CheckoutLineItem struct {
	ID                  string               `json:"id"`
	Title               string               `json:"title"`
	Quantity            int                  `json:"quantity"`
	Variant             *ProductVariant      `json:"variant"`
	DiscountAllocations []DiscountAllocation `json:"discountAllocations"`
}

// ShippingLine is the selected shipping rate.
type ShippingLine struct {
	Price Money `json:"price"`
}

// DeliveryOption is one selectable delivery option with pre- and
// post-discount cost.
type DeliveryOption struct {
	Title              string `json:"title"`
	Cost               Money  `json:"cost"`
	CostAfterDiscounts Money  `json:"costAfterDiscounts"`
}

// Delivery holds the options the buyer selected.
type Delivery struct {
	SelectedDeliveryOptions []DeliveryOption `json:"selectedDeliveryOptions"`
}

// Transaction is one payment transaction on a completed checkout.
type Transaction struct {
	Gateway string `json:"gateway"`
}

// Order identifies the created order on checkout completion.
type Order struct {
	ID string `json:"id"`
}

// Checkout is the platform checkout snapshot shared by all checkout-stage
// events.
type Checkout struct {
	CurrencyCode         string                `json:"currencyCode"`
	TotalPrice           Money                 `json:"totalPrice"`
	TotalTax             *Money                `json:"totalTax"`
	DiscountsAmount      *Money                `json:"discountsAmount"`
	ShippingLine         *ShippingLine         `json:"shippingLine"`
	Delivery             *Delivery             `json:"delivery"`
	DiscountApplications []DiscountApplication `json:"discountApplications"`
	LineItems            []CheckoutLineItem    `json:"lineItems"`
	Email                string                `json:"email"`
	ShippingAddress      map[string]any        `json:"shippingAddress"`
	Transactions         []Transaction         `json:"transactions"`
	Order                *Order                `json:"order"`
}

// Event data wrappers: each inbound event type nests its payload under a
// single key, mirroring the platform's schema.

type collectionData struct {
	Collection *Collection `json:"collection"`
}

type productViewData struct {
	ProductVariant *ProductVariant `json:"productVariant"`
}

type cartLineData struct {
	CartLine *CartLine `json:"cartLine"`
}

type cartData struct {
	Cart *Cart `json:"cart"`
}

type checkoutData struct {
	Checkout *Checkout `json:"checkout"`
}

type searchData struct {
	SearchResult *SearchResult `json:"searchResult"`
}

type formData struct {
	Element *FormElement `json:"element"`
}

type clickData struct {
	Element *ClickElement `json:"element"`
}

// PrivacyPayload is the customer-privacy subscription payload.
type PrivacyPayload struct {
	CustomerPrivacy CustomerPrivacy `json:"customerPrivacy"`
}

// CustomerPrivacy carries the visitor's collected consent decision.
type CustomerPrivacy struct {
	AnalyticsProcessingAllowed   bool `json:"analyticsProcessingAllowed"`
	MarketingAllowed             bool `json:"marketingAllowed"`
	PreferencesProcessingAllowed bool `json:"preferencesProcessingAllowed"`
}

// Shop is the storefront identity available at session start.
type Shop struct {
	Name string `json:"name"`
}

// Customer is the resolved customer identity, when the visitor is known.
type Customer struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone"`
	OrdersCount int    `json:"ordersCount"`
}

// InitData is the startup payload of a page-load session.
type InitData struct {
	Shop     *Shop     `json:"shop"`
	Customer *Customer `json:"customer"`
}

// Init is the session-creation envelope: the page's initial document
// context, shop/customer identity, and the raw consent cookie value if the
// beacon forwarded one.
type Init struct {
	ID            string       `json:"id"`
	Context       EventContext `json:"context"`
	Data          InitData     `json:"data"`
	ConsentCookie string       `json:"consentCookie"`
}
