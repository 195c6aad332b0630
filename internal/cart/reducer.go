package cart

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
)

type ActionType string

const (
	ActionAddItem        ActionType = "ADD_ITEM"
	ActionRemoveItem     ActionType = "REMOVE_ITEM"
	ActionUpdateQuantity ActionType = "UPDATE_QUANTITY"
	ActionClear          ActionType = "CLEAR"
)

var (
	ErrUnknownAction   = errors.New("unknown cart action")
	ErrInvalidQuantity = fmt.Errorf("quantity must be between 1 and %d", domain.MaxLineQuantity)
	ErrMissingItemKey  = errors.New("productId and variantId are required")
	ErrItemNotFound    = errors.New("item not found in cart")
)

// Action is a single cart mutation as sent by the storefront.
type Action struct {
	Type      ActionType `json:"type"`
	ProductID string     `json:"productId,omitempty"`
	VariantID string     `json:"variantId,omitempty"`
	Quantity  int        `json:"quantity,omitempty"`
	UnitPrice int64      `json:"unitPrice,omitempty"`
}

// Reduce applies a to c and returns the next cart. c is never modified.
// Every item in the result has 1 <= Quantity <= domain.MaxLineQuantity.
func Reduce(c domain.Cart, a Action, now time.Time) (domain.Cart, error) {
	next := c
	next.Items = slices.Clone(c.Items)

	switch a.Type {
	case ActionAddItem:
		if err := requireKey(a); err != nil {
			return c, err
		}
		if a.Quantity < 1 {
			return c, ErrInvalidQuantity
		}
		if a.Quantity > domain.MaxLineQuantity {
			return c, ErrInvalidQuantity
		}
		if i := indexOf(next.Items, a.ProductID, a.VariantID); i >= 0 {
			if next.Items[i].Quantity+a.Quantity > domain.MaxLineQuantity {
				return c, ErrInvalidQuantity
			}
			next.Items[i].Quantity += a.Quantity
			if a.UnitPrice > 0 {
				next.Items[i].UnitPrice = a.UnitPrice
			}
		} else {
			next.Items = append(next.Items, domain.CartItem{
				ProductID: a.ProductID,
				VariantID: a.VariantID,
				Quantity:  a.Quantity,
				UnitPrice: a.UnitPrice,
				AddedAt:   now,
			})
		}

	case ActionRemoveItem:
		if err := requireKey(a); err != nil {
			return c, err
		}
		if i := indexOf(next.Items, a.ProductID, a.VariantID); i >= 0 {
			next.Items = slices.Delete(next.Items, i, i+1)
		}

	case ActionUpdateQuantity:
		if err := requireKey(a); err != nil {
			return c, err
		}
		i := indexOf(next.Items, a.ProductID, a.VariantID)
		if i < 0 {
			return c, ErrItemNotFound
		}
		// dropping to zero removes the line
		if a.Quantity < 1 {
			next.Items = slices.Delete(next.Items, i, i+1)
		} else if a.Quantity > domain.MaxLineQuantity {
			return c, ErrInvalidQuantity
		} else {
			next.Items[i].Quantity = a.Quantity
		}

	case ActionClear:
		next.Items = nil

	default:
		return c, ErrUnknownAction
	}

	next.UpdatedAt = now
	if next.CreatedAt.IsZero() {
		next.CreatedAt = now
	}
	return next, nil
}

func requireKey(a Action) error {
	if a.ProductID == "" || a.VariantID == "" {
		return ErrMissingItemKey
	}
	return nil
}

func indexOf(items []domain.CartItem, productID, variantID string) int {
	return slices.IndexFunc(items, func(it domain.CartItem) bool {
		return it.ProductID == productID && it.VariantID == variantID
	})
}
