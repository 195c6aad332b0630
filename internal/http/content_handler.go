package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/asgared/elarcabeer/internal/content"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ContentStore interface {
	ListStores(ctx context.Context, activeOnly bool) ([]*domain.Store, error)
	CreateStore(ctx context.Context, s *domain.Store) error
	UpdateStore(ctx context.Context, s *domain.Store) error
	DeleteStore(ctx context.Context, id uuid.UUID) error

	ListPosts(ctx context.Context, publishedOnly bool, limit int) ([]*domain.Post, error)
	GetPostBySlug(ctx context.Context, slug string, publishedOnly bool) (*domain.Post, error)
	GetPost(ctx context.Context, id uuid.UUID) (*domain.Post, error)
	CreatePost(ctx context.Context, p *domain.Post) error
	UpdatePost(ctx context.Context, p *domain.Post) error
	DeletePost(ctx context.Context, id uuid.UUID) error
}

// ContentHandler serves store locations and the blog, publicly and from the
// back office.
type ContentHandler struct {
	content ContentStore
	timeout time.Duration
	log     *slog.Logger
}

func NewContentHandler(store ContentStore, timeout time.Duration, log *slog.Logger) *ContentHandler {
	return &ContentHandler{
		content: store,
		timeout: timeout,
		log:     log,
	}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type StoreDTO struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Hours   string `json:"hours,omitempty"`
	Active  *bool  `json:"active,omitempty"`
}

type PostDTO struct {
	ID          string `json:"id,omitempty"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Excerpt     string `json:"excerpt,omitempty"`
	Body        string `json:"body,omitempty"`
	CoverImage  string `json:"cover_image,omitempty"`
	AuthorID    string `json:"author_id,omitempty"`
	Status      string `json:"status,omitempty"`
	PublishedAt string `json:"published_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

func convertStore(s *domain.Store) StoreDTO {
	active := s.Active
	return StoreDTO{
		ID:      s.ID.String(),
		Name:    s.Name,
		Address: s.Address,
		City:    s.City,
		Country: s.Country,
		Phone:   s.Phone,
		Hours:   s.Hours,
		Active:  &active,
	}
}

func convertPost(p *domain.Post) PostDTO {
	dto := PostDTO{
		ID:         p.ID.String(),
		Slug:       p.Slug,
		Title:      p.Title,
		Excerpt:    p.Excerpt,
		Body:       p.Body,
		CoverImage: p.CoverImage,
		AuthorID:   p.AuthorID,
		Status:     string(p.Status),
		UpdatedAt:  p.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if p.PublishedAt != nil {
		dto.PublishedAt = p.PublishedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

// GET /api/v1/stores
func (h *ContentHandler) ListStores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.listStores(ctx, w, true)
}

// GET /api/v1/admin/stores
func (h *ContentHandler) AdminListStores(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.listStores(ctx, w, false)
}

func (h *ContentHandler) listStores(ctx context.Context, w http.ResponseWriter, activeOnly bool) {
	list, err := h.content.ListStores(ctx, activeOnly)
	if err != nil {
		h.log.ErrorContext(ctx, "list stores failed", "error", err)
		respondInternal(w)
		return
	}
	dtos := make([]StoreDTO, 0, len(list))
	for _, s := range list {
		dtos = append(dtos, convertStore(s))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// POST /api/v1/admin/stores
func (h *ContentHandler) CreateStore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := decodeStore(w, r)
	if !ok {
		return
	}
	if err := h.content.CreateStore(ctx, s); err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	h.log.InfoContext(ctx, "store created", "store_id", s.ID, "admin_id", adminID(r))
	respondJSON(w, http.StatusCreated, convertStore(s))
}

// PUT /api/v1/admin/stores/{store_id}
func (h *ContentHandler) UpdateStore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseContentID(w, r, "store_id")
	if !ok {
		return
	}
	s, ok := decodeStore(w, r)
	if !ok {
		return
	}
	s.ID = id
	if err := h.content.UpdateStore(ctx, s); err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertStore(s))
}

// DELETE /api/v1/admin/stores/{store_id}
func (h *ContentHandler) DeleteStore(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseContentID(w, r, "store_id")
	if !ok {
		return
	}
	if err := h.content.DeleteStore(ctx, id); err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	h.log.InfoContext(ctx, "store deleted", "store_id", id, "admin_id", adminID(r))
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/posts?limit=
func (h *ContentHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.listPosts(ctx, w, r, true)
}

// GET /api/v1/admin/posts?limit=
func (h *ContentHandler) AdminListPosts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	h.listPosts(ctx, w, r, false)
}

func (h *ContentHandler) listPosts(ctx context.Context, w http.ResponseWriter, r *http.Request, publishedOnly bool) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.content.ListPosts(ctx, publishedOnly, limit)
	if err != nil {
		h.log.ErrorContext(ctx, "list posts failed", "error", err)
		respondInternal(w)
		return
	}
	dtos := make([]PostDTO, 0, len(list))
	for _, p := range list {
		dto := convertPost(p)
		// listings carry the excerpt only
		dto.Body = ""
		dtos = append(dtos, dto)
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/posts/{slug}
func (h *ContentHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := h.content.GetPostBySlug(ctx, chi.URLParam(r, "slug"), true)
	if err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertPost(p))
}

// GET /api/v1/admin/posts/{post_id}
func (h *ContentHandler) AdminGetPost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseContentID(w, r, "post_id")
	if !ok {
		return
	}
	p, err := h.content.GetPost(ctx, id)
	if err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertPost(p))
}

// POST /api/v1/admin/posts
//
// The author is the signed-in admin.
func (h *ContentHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, ok := decodePost(w, r)
	if !ok {
		return
	}
	p.AuthorID = adminID(r)
	if err := h.content.CreatePost(ctx, p); err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	h.log.InfoContext(ctx, "post created", "post_id", p.ID, "slug", p.Slug, "admin_id", p.AuthorID)
	respondJSON(w, http.StatusCreated, convertPost(p))
}

// PUT /api/v1/admin/posts/{post_id}
func (h *ContentHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseContentID(w, r, "post_id")
	if !ok {
		return
	}
	p, ok := decodePost(w, r)
	if !ok {
		return
	}
	p.ID = id
	if err := h.content.UpdatePost(ctx, p); err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertPost(p))
}

// DELETE /api/v1/admin/posts/{post_id}
func (h *ContentHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, ok := parseContentID(w, r, "post_id")
	if !ok {
		return
	}
	if err := h.content.DeletePost(ctx, id); err != nil {
		h.handleContentError(ctx, w, err)
		return
	}
	h.log.InfoContext(ctx, "post deleted", "post_id", id, "admin_id", adminID(r))
	w.WriteHeader(http.StatusNoContent)
}

func decodeStore(w http.ResponseWriter, r *http.Request) (*domain.Store, bool) {
	var req StoreDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "name is required", Code: "validation_error", Field: "name",
		})
		return nil, false
	}
	s := &domain.Store{
		Name:    name,
		Address: strings.TrimSpace(req.Address),
		City:    strings.TrimSpace(req.City),
		Country: strings.ToUpper(strings.TrimSpace(req.Country)),
		Phone:   strings.TrimSpace(req.Phone),
		Hours:   strings.TrimSpace(req.Hours),
		Active:  true,
	}
	if req.Active != nil {
		s.Active = *req.Active
	}
	return s, true
}

func decodePost(w http.ResponseWriter, r *http.Request) (*domain.Post, bool) {
	var req PostDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return nil, false
	}

	fail := func(field, msg string) (*domain.Post, bool) {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "validation_error", Field: field})
		return nil, false
	}

	p := &domain.Post{
		Slug:       strings.TrimSpace(req.Slug),
		Title:      strings.TrimSpace(req.Title),
		Excerpt:    req.Excerpt,
		Body:       req.Body,
		CoverImage: strings.TrimSpace(req.CoverImage),
		Status:     domain.PostStatusDraft,
	}
	if p.Title == "" {
		return fail("title", "title is required")
	}
	if !slugPattern.MatchString(p.Slug) {
		return fail("slug", "slug must be lowercase letters, digits and single dashes")
	}
	if req.Status != "" {
		status, ok := domain.ParsePostStatus(req.Status)
		if !ok {
			return fail("status", "status must be DRAFT or PUBLISHED")
		}
		p.Status = status
	}
	return p, true
}

func parseContentID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func adminID(r *http.Request) string {
	if id := IdentityFrom(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}

func (h *ContentHandler) handleContentError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, content.ErrStoreNotFound):
		respondError(w, http.StatusNotFound, "store_not_found", "store not found")
	case errors.Is(err, content.ErrPostNotFound):
		respondError(w, http.StatusNotFound, "post_not_found", "post not found")
	case errors.Is(err, content.ErrSlugTaken):
		respondError(w, http.StatusConflict, "slug_taken", err.Error())
	default:
		h.log.ErrorContext(ctx, "content operation failed", "error", err)
		respondInternal(w)
	}
}
