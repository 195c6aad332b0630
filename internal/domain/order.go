package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// ParseOrderStatus accepts only the enumerated statuses, case-sensitive.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range orderStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s OrderStatus) String() string {
	return string(s)
}

type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
)

type OrderItem struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unit_amount"`
}

// Subtotal is quantity times unit amount, in cents.
func (i OrderItem) Subtotal() int64 {
	return int64(i.Quantity) * i.UnitAmount
}

type Payment struct {
	ID              uuid.UUID
	OrderID         uuid.UUID
	StripeSessionID string
	PaymentIntentID string
	Amount          int64
	Currency        string
	Status          PaymentStatus
	CreatedAt       time.Time
}

type ShippingInfo struct {
	Label   string `json:"label"`
	Street  string `json:"street"`
	City    string `json:"city"`
	Country string `json:"country"`
	Postal  string `json:"postal"`
}

type Order struct {
	ID            uuid.UUID
	UserID        string
	CustomerEmail string
	CustomerName  string
	Total         int64
	Currency      string
	Status        OrderStatus
	Shipping      ShippingInfo
	Items         []OrderItem
	Payment       *Payment
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ItemsTotal sums the line items; it ignores any provider-reported amount.
func (o *Order) ItemsTotal() int64 {
	var total int64
	for _, item := range o.Items {
		total += item.Subtotal()
	}
	return total
}

// OrderCreatedEvent is the outbox payload published after an order is persisted.
type OrderCreatedEvent struct {
	OrderID         string    `json:"order_id"`
	UserID          string    `json:"user_id"`
	Total           int64     `json:"total"`
	Currency        string    `json:"currency"`
	StripeSessionID string    `json:"stripe_session_id"`
	CreatedAt       time.Time `json:"created_at"`
}

const EventTypeOrderCreated = "order.created"
