package domain

// MaxLineQuantity bounds a single line so order totals stay far from int64 overflow.
const MaxLineQuantity = 99

type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// LineItem is a validated cart line; UnitAmount always comes from the catalog.
type LineItem struct {
	ProductID  string `json:"productId"`
	VariantID  string `json:"variantId"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unitAmount"`
}

func (l LineItem) Subtotal() int64 {
	return int64(l.Quantity) * l.UnitAmount
}

// CheckoutOrder is the normalized result of checkout validation.
type CheckoutOrder struct {
	UserID   string
	Customer Customer
	Shipping ShippingInfo
	Currency string
	Locale   string
	Items    []LineItem
}

func (c *CheckoutOrder) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Subtotal()
	}
	return total
}
