package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

func setup(t *testing.T, expiry Expiry) (*Docs[doc], *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New[doc](client, "test:", expiry), mr
}

func TestExpiry_Next(t *testing.T) {
	fixed := Expiry{Base: time.Minute}
	assert.Equal(t, time.Minute, fixed.Next())

	spread := Expiry{Base: time.Minute, Jitter: 10 * time.Second}
	for range 100 {
		got := spread.Next()
		assert.GreaterOrEqual(t, got, time.Minute)
		assert.Less(t, got, time.Minute+10*time.Second)
	}
}

func TestDocs_RoundTrip(t *testing.T) {
	docs, mr := setup(t, Expiry{Base: 5 * time.Minute, Jitter: time.Minute})
	ctx := context.Background()

	_, hit, err := docs.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, docs.Set(ctx, "a", doc{Name: "Arca IPA", Price: 1500}))
	assert.True(t, mr.Exists("test:a"))
	ttl := mr.TTL("test:a")
	assert.GreaterOrEqual(t, ttl, 5*time.Minute)
	assert.Less(t, ttl, 6*time.Minute)

	got, hit, err := docs.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, doc{Name: "Arca IPA", Price: 1500}, got)

	require.NoError(t, docs.Set(ctx, "b", doc{Name: "Arca Lager"}))
	require.NoError(t, docs.Delete(ctx, "a", "b"))
	assert.False(t, mr.Exists("test:a"))
	assert.False(t, mr.Exists("test:b"))
}

func TestDocs_CorruptValue(t *testing.T) {
	docs, mr := setup(t, Expiry{Base: time.Minute})
	require.NoError(t, mr.Set("test:a", "not json"))

	_, hit, err := docs.Get(context.Background(), "a")
	assert.False(t, hit)
	assert.ErrorContains(t, err, "decode test:a")
}

func TestDocs_ServerDown(t *testing.T) {
	docs, mr := setup(t, Expiry{Base: time.Minute})
	mr.Close()

	_, hit, err := docs.Get(context.Background(), "a")
	assert.False(t, hit)
	assert.Error(t, err)
	assert.Error(t, docs.Set(context.Background(), "a", doc{}))
}
