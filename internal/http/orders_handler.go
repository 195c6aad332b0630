package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type OrderStore interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)
	ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
}

type OrdersHandler struct {
	orders  OrderStore
	timeout time.Duration
	log     *slog.Logger
}

func NewOrdersHandler(store OrderStore, timeout time.Duration, log *slog.Logger) *OrdersHandler {
	return &OrdersHandler{
		orders:  store,
		timeout: timeout,
		log:     log,
	}
}

type OrderItemDTO struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unit_amount"`
}

type PaymentDTO struct {
	ID              string `json:"id"`
	StripeSessionID string `json:"stripe_session_id"`
	Amount          int64  `json:"amount"`
	Status          string `json:"status"`
}

type OrderResponseDTO struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	CustomerEmail string              `json:"customer_email"`
	CustomerName  string              `json:"customer_name,omitempty"`
	Total         int64               `json:"total"`
	TotalDisplay  string              `json:"total_display"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status"`
	Shipping      domain.ShippingInfo `json:"shipping"`
	Items         []OrderItemDTO      `json:"items"`
	Payment       *PaymentDTO         `json:"payment,omitempty"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
}

type UpdateStatusRequestDTO struct {
	Status string `json:"status"`
}

func convertOrder(o *domain.Order) OrderResponseDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemDTO{
			ProductID:  item.ProductID,
			VariantID:  item.VariantID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitAmount: item.UnitAmount,
		})
	}

	dto := OrderResponseDTO{
		ID:            o.ID.String(),
		UserID:        o.UserID,
		CustomerEmail: o.CustomerEmail,
		CustomerName:  o.CustomerName,
		Total:         o.Total,
		TotalDisplay:  formatAmount(o.Total, o.Currency),
		Currency:      o.Currency,
		Status:        string(o.Status),
		Shipping:      o.Shipping,
		Items:         items,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if o.Payment != nil {
		dto.Payment = &PaymentDTO{
			ID:              o.Payment.ID.String(),
			StripeSessionID: o.Payment.StripeSessionID,
			Amount:          o.Payment.Amount,
			Status:          string(o.Payment.Status),
		}
	}
	return dto
}

func convertOrders(list []*domain.Order) []OrderResponseDTO {
	dtos := make([]OrderResponseDTO, 0, len(list))
	for _, o := range list {
		dtos = append(dtos, convertOrder(o))
	}
	return dtos
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := IdentityFrom(r.Context())
	if id == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	list, err := h.orders.ListOrdersByUserID(ctx, id.UserID)
	if err != nil {
		h.log.ErrorContext(ctx, "list orders failed", "user_id", id.UserID, "error", err)
		respondInternal(w)
		return
	}
	respondJSON(w, http.StatusOK, convertOrders(list))
}

// GET /api/v1/orders/{order_id}
//
// Orders of other users are reported as not found.
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id := IdentityFrom(r.Context())
	if id == nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrderByID(ctx, orderID)
	if err == nil && o.UserID != id.UserID {
		err = orders.ErrOrderNotFound
	}
	if err != nil {
		h.handleOrderError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(o))
}

// GET /api/v1/admin/orders?status=&limit=
func (h *OrdersHandler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var status domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s, ok := domain.ParseOrderStatus(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid_status", "unknown order status")
			return
		}
		status = s
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.orders.ListOrders(ctx, status, limit)
	if err != nil {
		h.log.ErrorContext(ctx, "admin list orders failed", "error", err)
		respondInternal(w)
		return
	}
	respondJSON(w, http.StatusOK, convertOrders(list))
}

// GET /api/v1/admin/orders/{order_id}
func (h *OrdersHandler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	o, err := h.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		h.handleOrderError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertOrder(o))
}

// PATCH /api/v1/admin/orders/{order_id}/status
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID, ok := parseOrderID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_status",
			"status must be one of PENDING, PROCESSING, SHIPPED, COMPLETED, CANCELLED")
		return
	}

	o, err := h.orders.UpdateOrderStatus(ctx, orderID, status)
	if err != nil {
		h.handleOrderError(ctx, w, err)
		return
	}

	admin := IdentityFrom(r.Context())
	if admin != nil {
		h.log.InfoContext(ctx, "order status updated", "order_id", orderID, "status", status, "admin_id", admin.UserID)
	}
	respondJSON(w, http.StatusOK, convertOrder(o))
}

func parseOrderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "order_id")
	if raw == "" {
		respondError(w, http.StatusBadRequest, "missing_order_id", "order_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *OrdersHandler) handleOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, orders.ErrInvalidTransition):
		respondError(w, http.StatusBadRequest, "invalid_status", err.Error())
	default:
		h.log.ErrorContext(ctx, "order operation failed", "error", err)
		respondInternal(w)
	}
}
