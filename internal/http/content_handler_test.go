package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/asgared/elarcabeer/internal/content"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeContent struct {
	mu     sync.Mutex
	stores map[uuid.UUID]*domain.Store
	posts  map[uuid.UUID]*domain.Post
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		stores: make(map[uuid.UUID]*domain.Store),
		posts:  make(map[uuid.UUID]*domain.Post),
	}
}

func (f *fakeContent) ListStores(_ context.Context, activeOnly bool) ([]*domain.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*domain.Store
	for _, s := range f.stores {
		if !activeOnly || s.Active {
			list = append(list, s)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list, nil
}

func (f *fakeContent) CreateStore(_ context.Context, s *domain.Store) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s.ID = uuid.New()
	f.stores[s.ID] = s
	return nil
}

func (f *fakeContent) UpdateStore(_ context.Context, s *domain.Store) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stores[s.ID]; !ok {
		return content.ErrStoreNotFound
	}
	f.stores[s.ID] = s
	return nil
}

func (f *fakeContent) DeleteStore(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stores[id]; !ok {
		return content.ErrStoreNotFound
	}
	delete(f.stores, id)
	return nil
}

func (f *fakeContent) ListPosts(_ context.Context, publishedOnly bool, _ int) ([]*domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*domain.Post
	for _, p := range f.posts {
		if !publishedOnly || p.Status == domain.PostStatusPublished {
			list = append(list, p)
		}
	}
	return list, nil
}

func (f *fakeContent) GetPostBySlug(_ context.Context, slug string, publishedOnly bool) (*domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.posts {
		if p.Slug == slug && (!publishedOnly || p.Status == domain.PostStatusPublished) {
			return p, nil
		}
	}
	return nil, content.ErrPostNotFound
}

func (f *fakeContent) GetPost(_ context.Context, id uuid.UUID) (*domain.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.posts[id]
	if !ok {
		return nil, content.ErrPostNotFound
	}
	return p, nil
}

func (f *fakeContent) CreatePost(_ context.Context, p *domain.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.posts {
		if existing.Slug == p.Slug {
			return content.ErrSlugTaken
		}
	}
	p.ID = uuid.New()
	p.UpdatedAt = time.Now()
	if p.Status == domain.PostStatusPublished {
		now := p.UpdatedAt
		p.PublishedAt = &now
	}
	f.posts[p.ID] = p
	return nil
}

func (f *fakeContent) UpdatePost(_ context.Context, p *domain.Post) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.posts[p.ID]
	if !ok {
		return content.ErrPostNotFound
	}
	p.AuthorID = existing.AuthorID
	p.PublishedAt = existing.PublishedAt
	if p.Status == domain.PostStatusPublished && p.PublishedAt == nil {
		now := time.Now()
		p.PublishedAt = &now
	}
	f.posts[p.ID] = p
	return nil
}

func (f *fakeContent) DeletePost(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.posts[id]; !ok {
		return content.ErrPostNotFound
	}
	delete(f.posts, id)
	return nil
}

func adminRequest(method, target, body, token string) *http.Request {
	return withSession(httptest.NewRequest(method, target, strings.NewReader(body)), token)
}

func TestAdminStores(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(adminRequest(http.MethodPost, "/api/v1/admin/stores",
		`{"name":"Arca Centro","address":"Calle Mayor 1","city":"Madrid","country":"es"}`, "manager-token"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[StoreDTO](t, rec)
	assert.Equal(t, "ES", created.Country)
	require.NotNil(t, created.Active)
	assert.True(t, *created.Active)

	rec = ts.do(adminRequest(http.MethodPost, "/api/v1/admin/stores",
		`{"name":"Arca Norte","city":"Bilbao","active":false}`, "manager-token"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hidden := decode[StoreDTO](t, rec)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/stores", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	public := decode[[]StoreDTO](t, rec)
	require.Len(t, public, 1)
	assert.Equal(t, "Arca Centro", public[0].Name)

	rec = ts.do(adminRequest(http.MethodGet, "/api/v1/admin/stores", "", "manager-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]StoreDTO](t, rec), 2)

	rec = ts.do(adminRequest(http.MethodPut, "/api/v1/admin/stores/"+hidden.ID,
		`{"name":"Arca Norte","city":"Bilbao","hours":"10-22"}`, "manager-token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "10-22", decode[StoreDTO](t, rec).Hours)

	rec = ts.do(adminRequest(http.MethodDelete, "/api/v1/admin/stores/"+created.ID, "", "manager-token"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(adminRequest(http.MethodDelete, "/api/v1/admin/stores/"+created.ID, "", "manager-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminStores_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(adminRequest(http.MethodPost, "/api/v1/admin/stores", `{"name":"  "}`, "manager-token"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "name", decode[ErrorResponse](t, rec).Field)

	rec = ts.do(adminRequest(http.MethodPut, "/api/v1/admin/stores/not-a-uuid", `{"name":"x"}`, "manager-token"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(adminRequest(http.MethodPut, "/api/v1/admin/stores/"+uuid.NewString(), `{"name":"x"}`, "manager-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminPosts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(adminRequest(http.MethodPost, "/api/v1/admin/posts",
		`{"slug":"hop-harvest","title":"Hop harvest","excerpt":"Fresh hops","body":"Long read"}`, "editor-token"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	post := decode[PostDTO](t, rec)
	assert.Equal(t, "DRAFT", post.Status)
	assert.Equal(t, "e1", post.AuthorID)
	assert.Empty(t, post.PublishedAt)

	rec = ts.do(adminRequest(http.MethodPost, "/api/v1/admin/posts",
		`{"slug":"hop-harvest","title":"Again"}`, "editor-token"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	// drafts stay private
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/posts/hop-harvest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]PostDTO](t, rec))

	rec = ts.do(adminRequest(http.MethodPut, "/api/v1/admin/posts/"+post.ID,
		`{"slug":"hop-harvest","title":"Hop harvest","body":"Long read","status":"PUBLISHED"}`, "editor-token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, decode[PostDTO](t, rec).PublishedAt)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/posts/hop-harvest", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Long read", decode[PostDTO](t, rec).Body)

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]PostDTO](t, rec)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Body, "listings omit the body")

	rec = ts.do(adminRequest(http.MethodGet, "/api/v1/admin/posts/"+post.ID, "", "editor-token"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(adminRequest(http.MethodDelete, "/api/v1/admin/posts/"+post.ID, "", "editor-token"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminPosts_Validation(t *testing.T) {
	ts := newTestServer(t)

	for body, field := range map[string]string{
		`{"slug":"ok","title":""}`:                      "title",
		`{"slug":"Not Valid","title":"T"}`:              "slug",
		`{"slug":"trailing-","title":"T"}`:              "slug",
		`{"slug":"ok","title":"T","status":"archived"}`: "status",
	} {
		rec := ts.do(adminRequest(http.MethodPost, "/api/v1/admin/posts", body, "editor-token"))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, field, decode[ErrorResponse](t, rec).Field, body)
	}

	rec := ts.do(adminRequest(http.MethodGet, "/api/v1/admin/posts?limit=0", "", "editor-token"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestContentCapabilities(t *testing.T) {
	ts := newTestServer(t)
	storeBody := `{"name":"Arca Centro"}`
	postBody := `{"slug":"news","title":"News"}`

	tests := []struct {
		name   string
		req    *http.Request
		status int
	}{
		{"editor cannot manage stores", adminRequest(http.MethodPost, "/api/v1/admin/stores", storeBody, "editor-token"), http.StatusUnauthorized},
		{"manager cannot manage posts", adminRequest(http.MethodPost, "/api/v1/admin/posts", postBody, "manager-token"), http.StatusUnauthorized},
		{"anonymous cannot list drafts", httptest.NewRequest(http.MethodGet, "/api/v1/admin/posts", nil), http.StatusUnauthorized},
		{"editor manages posts", adminRequest(http.MethodPost, "/api/v1/admin/posts", postBody, "editor-token"), http.StatusCreated},
		{"manager manages stores", adminRequest(http.MethodPost, "/api/v1/admin/stores", storeBody, "manager-token"), http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
