package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/orders"
	"github.com/google/uuid"
)

var (
	ErrStoreNotFound = errors.New("store not found")
	ErrPostNotFound  = errors.New("post not found")
	ErrSlugTaken     = errors.New("a post with this slug already exists")
)

// Repository holds the marketing content managed from the back office:
// store locations and blog posts.
type Repository struct {
	db *sql.DB
}

// NewRepository shares the orders pool, like loyalty.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) RunMigrations(dir string) error {
	return orders.RunMigrations(r.db, dir, "content_schema_migrations")
}

const selectStores = `
	SELECT id, name, address, city, country, phone, hours, active, created_at, updated_at
	FROM stores`

func (r *Repository) ListStores(ctx context.Context, activeOnly bool) ([]*domain.Store, error) {
	rows, err := r.db.QueryContext(ctx,
		selectStores+` WHERE ($1 = FALSE OR active) ORDER BY name`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query stores: %w", err)
	}
	defer rows.Close()

	var list []*domain.Store
	for rows.Next() {
		s, err := scanStore(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return list, nil
}

func (r *Repository) GetStore(ctx context.Context, id uuid.UUID) (*domain.Store, error) {
	s, err := scanStore(r.db.QueryRowContext(ctx, selectStores+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStoreNotFound
	}
	return s, err
}

func (r *Repository) CreateStore(ctx context.Context, s *domain.Store) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, address, city, country, phone, hours, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.Name, s.Address, s.City, s.Country, s.Phone, s.Hours, s.Active, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert store: %w", err)
	}
	return nil
}

// UpdateStore replaces every editable field of an existing store.
func (r *Repository) UpdateStore(ctx context.Context, s *domain.Store) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE stores
		SET name = $2, address = $3, city = $4, country = $5, phone = $6, hours = $7, active = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Address, s.City, s.Country, s.Phone, s.Hours, s.Active,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrStoreNotFound
	}
	if err != nil {
		return fmt.Errorf("update store: %w", err)
	}
	return nil
}

func (r *Repository) DeleteStore(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.db, "stores", id, ErrStoreNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStore(row rowScanner) (*domain.Store, error) {
	var s domain.Store
	err := row.Scan(&s.ID, &s.Name, &s.Address, &s.City, &s.Country, &s.Phone, &s.Hours,
		&s.Active, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan store row: %w", err)
	}
	return &s, nil
}

func deleteByID(ctx context.Context, db *sql.DB, table string, id uuid.UUID, notFound error) error {
	res, err := db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
