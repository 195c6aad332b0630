package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductExists   = errors.New("product already exists")
	ErrVariantConflict = errors.New("variant id belongs to another product")
)

// Store is the catalog as seen by checkout and the admin back office.
type Store interface {
	ListProducts(ctx context.Context) ([]*domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpsertVariant(ctx context.Context, v *domain.Variant) error
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// one connection: sqlite serializes writers, and ":memory:" is per connection
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `
		SELECT id, name, description, image_url, created_at
		FROM products
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*domain.Product
	byID := make(map[string]*domain.Product)
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
		byID[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	variants, err := r.queryVariants(ctx, `
		SELECT id, product_id, name, price, created_at
		FROM variants
		ORDER BY product_id, price
	`)
	if err != nil {
		return nil, err
	}
	for _, v := range variants {
		if p, ok := byID[v.ProductID]; ok {
			p.Variants = append(p.Variants, v)
		}
	}

	return products, nil
}

func (r *Repository) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, name, description, image_url, created_at
		FROM products
		WHERE id = $1
	`

	p := &domain.Product{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &p.Description, &p.ImageURL, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}

	p.Variants, err = r.queryVariants(ctx, `
		SELECT id, product_id, name, price, created_at
		FROM variants
		WHERE product_id = $1
		ORDER BY price
	`, id)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) queryVariants(ctx context.Context, query string, args ...any) ([]domain.Variant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.Name, &v.Price, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return variants, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO products (id, name, description, image_url, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.Description, p.ImageURL, p.CreatedAt)
	if err != nil {
		if isConstraintError(err) {
			return ErrProductExists
		}
		return fmt.Errorf("insert product: %w", err)
	}

	for i := range p.Variants {
		v := &p.Variants[i]
		v.ProductID = p.ID
		if v.CreatedAt.IsZero() {
			v.CreatedAt = p.CreatedAt
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO variants (id, product_id, name, price, created_at) VALUES ($1, $2, $3, $4, $5)`,
			v.ID, v.ProductID, v.Name, v.Price, v.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert variant %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

func (r *Repository) UpsertVariant(ctx context.Context, v *domain.Variant) error {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products WHERE id = $1`, v.ProductID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("query product: %w", err)
	}
	if exists == 0 {
		return ErrProductNotFound
	}

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO variants (id, product_id, name, price, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, price = excluded.price
		WHERE variants.product_id = excluded.product_id
	`, v.ID, v.ProductID, v.Name, v.Price, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert variant: %w", err)
	}
	// the conflict clause skips rows owned by another product
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upsert variant: %w", err)
	}
	if n == 0 {
		return ErrVariantConflict
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func isConstraintError(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY")
}
