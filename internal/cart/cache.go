package cart

import (
	"context"
	"errors"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/rediscache"
	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

// cartExpiry keeps an idle cart hot for 15 to 20 minutes; the Mongo mirror
// holds it after that.
var cartExpiry = rediscache.Expiry{Base: 15 * time.Minute, Jitter: 5 * time.Minute}

type Cache interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	Set(ctx context.Context, userID string, c *domain.Cart) error
	Delete(ctx context.Context, userID string) error
}

// RedisCache is the read-through layer in front of the cart mirror.
type RedisCache struct {
	carts *rediscache.Docs[*domain.Cart]
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{carts: rediscache.New[*domain.Cart](client, "cart:", cartExpiry)}
}

func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	c, hit, err := r.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !hit || c == nil {
		return nil, ErrCacheMiss
	}
	return c, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, c *domain.Cart) error {
	return r.carts.Set(ctx, userID, c)
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	return r.carts.Delete(ctx, userID)
}
