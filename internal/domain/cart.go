package domain

import "time"

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	UserID    string     `bson:"user_id" json:"user_id"`
	Items     []CartItem `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

type CartItem struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	VariantID string    `bson:"variant_id" json:"variant_id"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	UnitPrice int64     `bson:"unit_price" json:"unit_price"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

// Total is derived from the display prices captured when items were added.
// Checkout never trusts it.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += int64(item.Quantity) * item.UnitPrice
	}
	return total
}

func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}
