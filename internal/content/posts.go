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

const selectPosts = `
	SELECT id, slug, title, excerpt, body, cover_image, author_id, status, published_at, created_at, updated_at
	FROM posts`

// ListPosts returns published posts newest first, or every post by last edit
// when publishedOnly is false.
func (r *Repository) ListPosts(ctx context.Context, publishedOnly bool, limit int) ([]*domain.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := selectPosts + ` ORDER BY updated_at DESC LIMIT $1`
	if publishedOnly {
		query = selectPosts + ` WHERE status = 'PUBLISHED' ORDER BY published_at DESC LIMIT $1`
	}

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var list []*domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return list, nil
}

// GetPostBySlug hides drafts when publishedOnly is set.
func (r *Repository) GetPostBySlug(ctx context.Context, slug string, publishedOnly bool) (*domain.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx, selectPosts+` WHERE slug = $1`, slug))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && publishedOnly && p.Status != domain.PostStatusPublished) {
		return nil, ErrPostNotFound
	}
	return p, err
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*domain.Post, error) {
	p, err := scanPost(r.db.QueryRowContext(ctx, selectPosts+` WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	return p, err
}

func (r *Repository) CreatePost(ctx context.Context, p *domain.Post) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = domain.PostStatusDraft
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.PublishedAt = nil
	if p.Status == domain.PostStatusPublished {
		p.PublishedAt = &now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO posts (id, slug, title, excerpt, body, cover_image, author_id, status,
			published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Slug, p.Title, p.Excerpt, p.Body, p.CoverImage, p.AuthorID, string(p.Status),
		p.PublishedAt, p.CreatedAt, p.UpdatedAt)
	if orders.IsUniqueViolation(err) {
		return ErrSlugTaken
	}
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

// UpdatePost replaces the editable fields. The first publish stamps
// published_at; unpublishing keeps it.
func (r *Repository) UpdatePost(ctx context.Context, p *domain.Post) error {
	var publishedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE posts
		SET slug = $2, title = $3, excerpt = $4, body = $5, cover_image = $6, status = $7,
			published_at = CASE WHEN $7 = 'PUBLISHED' THEN COALESCE(published_at, NOW()) ELSE published_at END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING author_id, published_at, created_at, updated_at`,
		p.ID, p.Slug, p.Title, p.Excerpt, p.Body, p.CoverImage, string(p.Status),
	).Scan(&p.AuthorID, &publishedAt, &p.CreatedAt, &p.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrPostNotFound
	case orders.IsUniqueViolation(err):
		return ErrSlugTaken
	case err != nil:
		return fmt.Errorf("update post: %w", err)
	}
	p.PublishedAt = nil
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	return nil
}

func (r *Repository) DeletePost(ctx context.Context, id uuid.UUID) error {
	return deleteByID(ctx, r.db, "posts", id, ErrPostNotFound)
}

func scanPost(row rowScanner) (*domain.Post, error) {
	var p domain.Post
	var status string
	var publishedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Slug, &p.Title, &p.Excerpt, &p.Body, &p.CoverImage, &p.AuthorID,
		&status, &publishedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan post row: %w", err)
	}
	p.Status = domain.PostStatus(status)
	if publishedAt.Valid {
		t := publishedAt.Time
		p.PublishedAt = &t
	}
	return &p, nil
}
