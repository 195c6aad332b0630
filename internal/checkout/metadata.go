package checkout

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/asgared/elarcabeer/internal/domain"
)

// Provider metadata values are capped at 500 characters.
const maxMetadataValue = 500

const (
	MetaUserID          = "user_id"
	MetaCustomerEmail   = "customer_email"
	MetaCustomerName    = "customer_name"
	MetaShippingLabel   = "shipping_label"
	MetaShippingStreet  = "shipping_street"
	MetaShippingCity    = "shipping_city"
	MetaShippingCountry = "shipping_country"
	MetaShippingPostal  = "shipping_postal"
	MetaCurrency        = "currency"
	MetaLocale          = "locale"
	MetaCartItems       = "cart_items"
	MetaOrderTotal      = "order_total"
)

// EncodeMetadata flattens a validated order into the provider's string map.
// cart_items carries the JSON line items; when the JSON is longer than one
// value allows it continues in cart_items_1, cart_items_2 and so on.
func EncodeMetadata(o *domain.CheckoutOrder) (map[string]string, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode cart items: %w", err)
	}

	md := map[string]string{
		MetaUserID:          o.UserID,
		MetaCustomerEmail:   truncate(o.Customer.Email),
		MetaCustomerName:    truncate(o.Customer.Name),
		MetaShippingLabel:   truncate(o.Shipping.Label),
		MetaShippingStreet:  truncate(o.Shipping.Street),
		MetaShippingCity:    truncate(o.Shipping.City),
		MetaShippingCountry: truncate(o.Shipping.Country),
		MetaShippingPostal:  truncate(o.Shipping.Postal),
		MetaCurrency:        o.Currency,
		MetaLocale:          o.Locale,
		MetaOrderTotal:      strconv.FormatInt(o.Total(), 10),
	}
	for i, chunk := range chunks(string(items)) {
		md[cartItemsKey(i)] = chunk
	}
	return md, nil
}

// DecodeCartItems reassembles cart_items and keeps only well-formed lines with
// a product, a variant, a positive quantity and a positive unit amount.
func DecodeCartItems(md map[string]string) []domain.LineItem {
	var sb strings.Builder
	for i := 0; ; i++ {
		chunk, ok := md[cartItemsKey(i)]
		if !ok {
			break
		}
		sb.WriteString(chunk)
	}
	if sb.Len() == 0 {
		return nil
	}

	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(sb.String()), &entries); err != nil {
		return nil
	}

	items := make([]domain.LineItem, 0, len(entries))
	for _, raw := range entries {
		var li domain.LineItem
		if err := json.Unmarshal(raw, &li); err != nil {
			continue
		}
		if li.ProductID == "" || li.VariantID == "" || li.Quantity <= 0 || li.UnitAmount <= 0 {
			continue
		}
		items = append(items, li)
	}
	return items
}

// OrderTotal returns the declared order_total, or 0 when it is absent or not a positive integer.
func OrderTotal(md map[string]string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(md[MetaOrderTotal]), 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}

func cartItemsKey(i int) string {
	if i == 0 {
		return MetaCartItems
	}
	return fmt.Sprintf("%s_%d", MetaCartItems, i)
}

// chunks splits s into pieces of at most maxMetadataValue bytes without
// cutting a UTF-8 sequence.
func chunks(s string) []string {
	var out []string
	for len(s) > maxMetadataValue {
		cut := maxMetadataValue
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	return append(out, s)
}

func truncate(s string) string {
	if len(s) <= maxMetadataValue {
		return s
	}
	return chunks(s)[0]
}
