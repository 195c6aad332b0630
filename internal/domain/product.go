package domain

import "time"

type Product struct {
	ID          string
	Name        string
	Description string
	ImageURL    string
	Variants    []Variant
	CreatedAt   time.Time
}

// Variant is a purchasable SKU of a product, e.g. a pack size.
type Variant struct {
	ID        string
	ProductID string
	Name      string
	Price     int64 // cents
	CreatedAt time.Time
}

func (p *Product) Variant(id string) (*Variant, bool) {
	for i := range p.Variants {
		if p.Variants[i].ID == id {
			return &p.Variants[i], true
		}
	}
	return nil, false
}
