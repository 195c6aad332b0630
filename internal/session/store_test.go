package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client), mr
}

func TestStore_Lifecycle(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	id := domain.Identity{UserID: "admin-1", Email: "boss@elarca.test", Roles: []domain.Role{domain.RoleManager}}

	token, err := store.Create(ctx, id, time.Hour)
	require.NoError(t, err)
	assert.Len(t, token, 43)

	got, err := store.Get(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	require.NoError(t, store.Delete(ctx, token))
	_, err = store.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_Expires(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	token, err := store.Create(ctx, domain.Identity{UserID: "admin-1"}, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_UnknownAndEmptyTokens(t *testing.T) {
	store, _ := setupStore(t)

	_, err := store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = store.Get(context.Background(), "forged")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestStore_TokensAreUnique(t *testing.T) {
	store, _ := setupStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := store.Create(context.Background(), domain.Identity{UserID: "a"}, time.Minute)
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}

func TestStore_RedisDown(t *testing.T) {
	store, mr := setupStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSessionNotFound)
}
