package pixel

// IDMode selects how a line item's external product identifier is encoded.
// A session must use one mode for all of its call sites; mixing modes is a
// caller error and is not validated here.
type IDMode string

const (
	// IDModeComposite composes prefix_COUNTRY_productID_variantID, the
	// feed-style identifier ad platforms expect for catalog matching.
	IDModeComposite IDMode = "composite"
	// IDModeVariant uses the bare variant id.
	IDModeVariant IDMode = "variant"
	// IDModeProductVariant composes productID_variantID.
	IDModeProductVariant IDMode = "product_variant"
	// IDModeSKU uses the merchant SKU; prefix and country are ignored.
	IDModeSKU IDMode = "sku"
)

// ResolveItemID maps a variant to its external identifier encoding.
// Pure and total: missing items or missing required sub-fields yield ""
// rather than an error, so callers can omit the key from their payloads.
func ResolveItemID(v *ProductVariant, mode IDMode, prefix, country string) string {
	if v == nil {
		return ""
	}
	switch mode {
	case IDModeComposite:
		if v.Product == nil || v.Product.ID == "" || v.ID == "" {
			return ""
		}
		return prefix + "_" + country + "_" + v.Product.ID + "_" + v.ID
	case IDModeProductVariant:
		if v.Product == nil || v.Product.ID == "" || v.ID == "" {
			return ""
		}
		return v.Product.ID + "_" + v.ID
	case IDModeSKU:
		return v.SKU
	case IDModeVariant:
		return v.ID
	default:
		return v.ID
	}
}
