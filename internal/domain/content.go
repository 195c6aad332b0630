package domain

import (
	"time"

	"github.com/google/uuid"
)

// Store is a physical taproom or shop shown on the storefront's locations page.
type Store struct {
	ID        uuid.UUID
	Name      string
	Address   string
	City      string
	Country   string
	Phone     string
	Hours     string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PostStatus string

const (
	PostStatusDraft     PostStatus = "DRAFT"
	PostStatusPublished PostStatus = "PUBLISHED"
)

func ParsePostStatus(s string) (PostStatus, bool) {
	switch PostStatus(s) {
	case PostStatusDraft, PostStatusPublished:
		return PostStatus(s), true
	}
	return "", false
}

// Post is a blog entry. PublishedAt is set the first time it is published
// and kept if it is later unpublished and republished.
type Post struct {
	ID          uuid.UUID
	Slug        string
	Title       string
	Excerpt     string
	Body        string
	CoverImage  string
	AuthorID    string
	Status      PostStatus
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
