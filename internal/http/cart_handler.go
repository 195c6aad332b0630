package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/asgared/elarcabeer/internal/cart"
	"github.com/asgared/elarcabeer/internal/catalog"
	"github.com/asgared/elarcabeer/internal/domain"
)

type CartService interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Dispatch(ctx context.Context, userID string, a cart.Action) (*domain.Cart, error)
}

type ProductGetter interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type CartHandler struct {
	carts    CartService
	products ProductGetter
	currency string
	timeout  time.Duration
	log      *slog.Logger
}

// NewCartHandler prices carts in currency, the store's checkout currency.
func NewCartHandler(carts CartService, products ProductGetter, currency string, timeout time.Duration, log *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		products: products,
		currency: currency,
		timeout:  timeout,
		log:      log,
	}
}

type CartItemDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
}

type CartResponseDTO struct {
	UserID       string        `json:"user_id"`
	Items        []CartItemDTO `json:"items"`
	Count        int           `json:"count"`
	Total        int64         `json:"total"`
	TotalDisplay string        `json:"total_display"`
	Currency     string        `json:"currency"`
}

func convertCart(c *domain.Cart, currency string) CartResponseDTO {
	items := make([]CartItemDTO, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, CartItemDTO{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return CartResponseDTO{
		UserID:       c.UserID,
		Items:        items,
		Count:        c.Count(),
		Total:        c.Total(),
		TotalDisplay: formatAmount(c.Total(), currency),
		Currency:     currency,
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := IdentityFrom(r.Context())
	if id == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	c, err := h.carts.Get(ctx, id.UserID)
	if err != nil {
		h.log.ErrorContext(ctx, "get cart failed", "user_id", id.UserID, "error", err)
		respondInternal(w)
		return
	}
	respondJSON(w, http.StatusOK, convertCart(c, h.currency))
}

// POST /api/v1/cart/actions
//
// ADD_ITEM prices the line from the catalog; a client-sent unitPrice is ignored.
func (h *CartHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := IdentityFrom(r.Context())
	if id == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var a cart.Action
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if a.Type == cart.ActionAddItem {
		a.UnitPrice = 0
		if a.ProductID != "" && a.VariantID != "" {
			price, ok := h.price(ctx, w, a.ProductID, a.VariantID)
			if !ok {
				return
			}
			a.UnitPrice = price
		}
	}

	c, err := h.carts.Dispatch(ctx, id.UserID, a)
	switch {
	case errors.Is(err, cart.ErrUnknownAction),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, cart.ErrMissingItemKey):
		respondError(w, http.StatusBadRequest, "invalid_action", err.Error())
		return
	case errors.Is(err, cart.ErrItemNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
		return
	case err != nil:
		h.log.ErrorContext(ctx, "cart action failed", "user_id", id.UserID, "action", a.Type, "error", err)
		respondInternal(w)
		return
	}
	respondJSON(w, http.StatusOK, convertCart(c, h.currency))
}

func (h *CartHandler) price(ctx context.Context, w http.ResponseWriter, productID, variantID string) (int64, bool) {
	p, err := h.products.GetProduct(ctx, productID)
	if errors.Is(err, catalog.ErrProductNotFound) {
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
		return 0, false
	}
	if err != nil {
		h.log.ErrorContext(ctx, "catalog lookup failed", "product_id", productID, "error", err)
		respondInternal(w)
		return 0, false
	}
	v, ok := p.Variant(variantID)
	if !ok {
		respondError(w, http.StatusNotFound, "variant_not_found", "variant not found")
		return 0, false
	}
	return v.Price, true
}
