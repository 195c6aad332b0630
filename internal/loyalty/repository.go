package loyalty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/orders"
	"github.com/google/uuid"
)

// centsPerPoint awards one point per whole currency unit.
const centsPerPoint = 100

// ErrInvalidEvent is unprocessable: the consumer commits it instead of retrying.
var ErrInvalidEvent = fmt.Errorf("%w: missing order id or user", orders.ErrUnprocessable)

type Repository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewRepository shares the orders pool; loyalty keeps its own tables and
// migration history in the same database.
func NewRepository(db *sql.DB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log}
}

func (r *Repository) RunMigrations(dir string) error {
	return orders.RunMigrations(r.db, dir, "loyalty_schema_migrations")
}

// Points converts an order total in cents into loyalty points.
func Points(total int64) int64 {
	if total <= 0 {
		return 0
	}
	return total / centsPerPoint
}

// AwardPoints credits the order's points to its user once per order id.
// It reports false when the order was already credited.
func (r *Repository) AwardPoints(ctx context.Context, ev domain.OrderCreatedEvent) (bool, error) {
	orderID, err := uuid.Parse(ev.OrderID)
	if err != nil || ev.UserID == "" {
		return false, fmt.Errorf("%w: order %q user %q", ErrInvalidEvent, ev.OrderID, ev.UserID)
	}
	points := Points(ev.Total)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO loyalty_ledger (order_id, user_id, points) VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING`,
		orderID, ev.UserID, points)
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert ledger entry: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loyalty_accounts (user_id, points) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET points = loyalty_accounts.points + excluded.points, updated_at = NOW()`,
		ev.UserID, points)
	if err != nil {
		return false, fmt.Errorf("upsert loyalty account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit loyalty award: %w", err)
	}
	return true, nil
}

// Balance returns the user's points; users without an account have zero.
func (r *Repository) Balance(ctx context.Context, userID string) (int64, error) {
	var points int64
	err := r.db.QueryRowContext(ctx,
		`SELECT points FROM loyalty_accounts WHERE user_id = $1`, userID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query loyalty balance: %w", err)
	}
	return points, nil
}

// HandleOrderCreated is the orders.Handler for the loyalty consumer group.
func (r *Repository) HandleOrderCreated(ctx context.Context, ev domain.OrderCreatedEvent) error {
	awarded, err := r.AwardPoints(ctx, ev)
	if err != nil {
		return err
	}
	if awarded {
		r.log.InfoContext(ctx, "loyalty points awarded", "order_id", ev.OrderID, "user_id", ev.UserID, "points", Points(ev.Total))
	} else {
		r.log.DebugContext(ctx, "loyalty points already awarded", "order_id", ev.OrderID)
	}
	return nil
}
