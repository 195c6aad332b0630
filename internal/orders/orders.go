package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/google/uuid"
)

// CreateOrder writes the order, its items, its payment and an order.created
// outbox event in one transaction. A second order for the same checkout
// session fails on the payments unique constraint with ErrDuplicatePayment.
func (r *Repository) CreateOrder(ctx context.Context, o *domain.Order) error {
	if o.Payment == nil {
		return errors.New("order has no payment")
	}
	now := time.Now().UTC()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = domain.OrderStatusPending
	}
	o.CreatedAt, o.UpdatedAt = now, now
	o.Payment.OrderID = o.ID
	o.Payment.CreatedAt = now
	if o.Payment.ID == uuid.Nil {
		o.Payment.ID = uuid.New()
	}

	payload, err := json.Marshal(domain.OrderCreatedEvent{
		OrderID:         o.ID.String(),
		UserID:          o.UserID,
		Total:           o.Total,
		Currency:        o.Currency,
		StripeSessionID: o.Payment.StripeSessionID,
		CreatedAt:       now,
	})
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, customer_email, customer_name, total, currency, status,
			shipping_label, shipping_street, shipping_city, shipping_country, shipping_postal,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.UserID, o.CustomerEmail, o.CustomerName, o.Total, o.Currency, string(o.Status),
		o.Shipping.Label, o.Shipping.Street, o.Shipping.City, o.Shipping.Country, o.Shipping.Postal,
		o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, product_id, variant_id, name, quantity, unit_amount)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, item.ProductID, item.VariantID, item.Name, item.Quantity, item.UnitAmount)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	p := o.Payment
	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, stripe_session_id, payment_intent_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.OrderID, p.StripeSessionID, p.PaymentIntentID, p.Amount, p.Currency, string(p.Status), p.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		o.ID.String(), domain.EventTypeOrderCreated, string(payload))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		if IsUniqueViolation(err) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("commit order: %w", err)
	}
	return nil
}

func (r *Repository) GetPaymentBySessionID(ctx context.Context, sessionID string) (*domain.Payment, error) {
	var p domain.Payment
	var status string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, stripe_session_id, payment_intent_id, amount, currency, status, created_at
		FROM payments WHERE stripe_session_id = $1`, sessionID).
		Scan(&p.ID, &p.OrderID, &p.StripeSessionID, &p.PaymentIntentID, &p.Amount, &p.Currency, &status, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment by session id: %w", err)
	}
	p.Status = domain.PaymentStatus(status)
	return &p, nil
}

const selectOrders = `
	SELECT o.id, o.user_id, o.customer_email, o.customer_name, o.total, o.currency, o.status,
		o.shipping_label, o.shipping_street, o.shipping_city, o.shipping_country, o.shipping_postal,
		o.created_at, o.updated_at,
		COALESCE((
			SELECT json_agg(json_build_object(
				'product_id', i.product_id,
				'variant_id', i.variant_id,
				'name', i.name,
				'quantity', i.quantity,
				'unit_amount', i.unit_amount) ORDER BY i.id)
			FROM order_items i WHERE i.order_id = o.id), '[]'::json) AS items,
		p.id, p.stripe_session_id, p.payment_intent_id, p.amount, p.currency, p.status, p.created_at
	FROM orders o
	JOIN payments p ON p.order_id = o.id`

func (r *Repository) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrders+` WHERE o.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	list, err := scanOrders(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrOrderNotFound
	}
	return list[0], nil
}

func (r *Repository) ListOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrders+` WHERE o.user_id = $1 ORDER BY o.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders by user id: %w", err)
	}
	return scanOrders(rows)
}

// ListOrders returns the newest orders first. An empty status lists all of them.
func (r *Repository) ListOrders(ctx context.Context, status domain.OrderStatus, limit int) ([]*domain.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		selectOrders+` WHERE ($1::text = '' OR o.status = $1::text) ORDER BY o.created_at DESC LIMIT $2`,
		string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	return scanOrders(rows)
}

// UpdateOrderStatus is a single-row update; it does not enforce a transition graph.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	if _, ok := domain.ParseOrderStatus(string(status)); !ok {
		return nil, ErrInvalidTransition
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	if n == 0 {
		return nil, ErrOrderNotFound
	}
	return r.GetOrderByID(ctx, id)
}

func scanOrders(rows *sql.Rows) ([]*domain.Order, error) {
	defer rows.Close()

	var list []*domain.Order
	for rows.Next() {
		var o domain.Order
		var p domain.Payment
		var status, paymentStatus string
		var items []byte
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.CustomerEmail, &o.CustomerName, &o.Total, &o.Currency, &status,
			&o.Shipping.Label, &o.Shipping.Street, &o.Shipping.City, &o.Shipping.Country, &o.Shipping.Postal,
			&o.CreatedAt, &o.UpdatedAt,
			&items,
			&p.ID, &p.StripeSessionID, &p.PaymentIntentID, &p.Amount, &p.Currency, &paymentStatus, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		p.OrderID = o.ID
		p.Status = domain.PaymentStatus(paymentStatus)
		o.Payment = &p
		list = append(list, &o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return list, nil
}
