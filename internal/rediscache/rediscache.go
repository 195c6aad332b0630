// Package rediscache stores JSON documents in Redis under a key prefix.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
)

// Expiry is a base TTL plus up to Jitter of random spread, so entries written
// together do not all expire in the same instant.
type Expiry struct {
	Base   time.Duration
	Jitter time.Duration
}

func (e Expiry) Next() time.Duration {
	if e.Jitter <= 0 {
		return e.Base
	}
	return e.Base + rand.N(e.Jitter)
}

// Docs is a typed view over the keys prefix+id.
type Docs[T any] struct {
	client *redis.Client
	prefix string
	expiry Expiry
}

func New[T any](client *redis.Client, prefix string, expiry Expiry) *Docs[T] {
	return &Docs[T]{client: client, prefix: prefix, expiry: expiry}
}

func (d *Docs[T]) Key(id string) string {
	return d.prefix + id
}

// Get reports hit=false with a nil error when the key is absent.
func (d *Docs[T]) Get(ctx context.Context, id string) (v T, hit bool, err error) {
	key := d.Key(id)
	data, err := d.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return v, false, nil
	}
	if err != nil {
		return v, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return v, true, nil
}

func (d *Docs[T]) Set(ctx context.Context, id string, v T) error {
	key := d.Key(id)
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := d.client.Set(ctx, key, data, d.expiry.Next()).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (d *Docs[T]) Delete(ctx context.Context, ids ...string) error {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.Key(id)
	}
	if err := d.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}
