package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/asgared/elarcabeer/internal/catalog"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/go-chi/chi/v5"
)

type ProductHandler struct {
	catalog  catalog.Store
	currency string
	timeout  time.Duration
	log      *slog.Logger
}

// NewProductHandler displays catalog prices in currency.
func NewProductHandler(store catalog.Store, currency string, timeout time.Duration, log *slog.Logger) *ProductHandler {
	return &ProductHandler{
		catalog:  store,
		currency: currency,
		timeout:  timeout,
		log:      log,
	}
}

type VariantResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	PriceDisplay string `json:"price_display"`
}

type ProductResponse struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	ImageURL    string            `json:"image_url"`
	Currency    string            `json:"currency"`
	Variants    []VariantResponse `json:"variants"`
}

type ProductsResponse struct {
	Products []ProductResponse `json:"products"`
}

type VariantRequestDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type CreateProductRequestDTO struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	ImageURL    string              `json:"image_url"`
	Variants    []VariantRequestDTO `json:"variants"`
}

func convertProduct(p *domain.Product, currency string) ProductResponse {
	variants := make([]VariantResponse, 0, len(p.Variants))
	for _, v := range p.Variants {
		variants = append(variants, VariantResponse{
			ID:           v.ID,
			Name:         v.Name,
			Price:        v.Price,
			PriceDisplay: formatAmount(v.Price, currency),
		})
	}
	return ProductResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		Currency:    currency,
		Variants:    variants,
	}
}

// GET /api/v1/products
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.catalog.ListProducts(ctx)
	if err != nil {
		h.log.ErrorContext(ctx, "list products failed", "error", err)
		respondInternal(w)
		return
	}

	products := make([]ProductResponse, len(list))
	for i, p := range list {
		products[i] = convertProduct(p, h.currency)
	}
	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "product_id"))
	if err != nil {
		h.handleCatalogError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProduct(p, h.currency))
}

// POST /api/v1/admin/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req CreateProductRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "invalid_product", "id and name are required")
		return
	}

	p := &domain.Product{
		ID:          strings.TrimSpace(req.ID),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		ImageURL:    req.ImageURL,
	}
	for _, v := range req.Variants {
		if msg := validateVariant(v); msg != "" {
			respondError(w, http.StatusBadRequest, "invalid_variant", msg)
			return
		}
		p.Variants = append(p.Variants, domain.Variant{ID: v.ID, Name: v.Name, Price: v.Price})
	}

	if err := h.catalog.CreateProduct(ctx, p); err != nil {
		h.handleCatalogError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusCreated, convertProduct(p, h.currency))
}

// PUT /api/v1/admin/products/{product_id}/variants/{variant_id}
func (h *ProductHandler) UpsertVariant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req VariantRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.ID = chi.URLParam(r, "variant_id")
	if msg := validateVariant(req); msg != "" {
		respondError(w, http.StatusBadRequest, "invalid_variant", msg)
		return
	}

	productID := chi.URLParam(r, "product_id")
	if err := h.catalog.UpsertVariant(ctx, &domain.Variant{ID: req.ID, ProductID: productID, Name: req.Name, Price: req.Price}); err != nil {
		h.handleCatalogError(ctx, w, err)
		return
	}

	p, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		h.handleCatalogError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertProduct(p, h.currency))
}

func validateVariant(v VariantRequestDTO) string {
	switch {
	case strings.TrimSpace(v.ID) == "":
		return "variant id is required"
	case strings.TrimSpace(v.Name) == "":
		return "variant name is required"
	case v.Price <= 0:
		return "variant price must be a positive amount in cents"
	}
	return ""
}

func (h *ProductHandler) handleCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, catalog.ErrProductExists):
		respondError(w, http.StatusConflict, "product_exists", "product already exists")
	case errors.Is(err, catalog.ErrVariantConflict):
		respondError(w, http.StatusConflict, "variant_conflict", err.Error())
	default:
		h.log.ErrorContext(ctx, "catalog operation failed", "error", err)
		respondInternal(w)
	}
}
