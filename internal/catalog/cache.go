package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/asgared/elarcabeer/internal/rediscache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	productPrefix = "catalog:product:"
	listKey       = "catalog:products"
)

// CachedStore serves product reads from Redis and falls back to the
// underlying store on a miss. Writes go straight through and invalidate.
type CachedStore struct {
	next     Store
	client   *redis.Client
	products *rediscache.Docs[*domain.Product]
	lists    *rediscache.Docs[[]*domain.Product]
	log      *slog.Logger
	sfg      singleflight.Group
}

func NewCachedStore(next Store, client *redis.Client, ttl time.Duration, log *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	expiry := rediscache.Expiry{Base: ttl, Jitter: time.Minute}
	return &CachedStore{
		next:     next,
		client:   client,
		products: rediscache.New[*domain.Product](client, productPrefix, expiry),
		lists:    rediscache.New[[]*domain.Product](client, "", expiry),
		log:      log,
	}
}

func (c *CachedStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	key := productKey(id)
	v, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		p, hit, err := c.products.Get(ctx, id)
		if hit && p != nil {
			return p, nil
		}
		if err != nil {
			c.log.WarnContext(ctx, "catalog cache get failed", "key", key, "error", err)
		}

		product, err := c.next.GetProduct(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := c.products.Set(ctx, id, product); err != nil {
			c.log.WarnContext(ctx, "catalog cache set failed", "key", key, "error", err)
		}
		return product, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Product), nil
}

func (c *CachedStore) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	v, err, _ := c.sfg.Do(listKey, func() (interface{}, error) {
		products, hit, err := c.lists.Get(ctx, listKey)
		if hit {
			return products, nil
		}
		if err != nil {
			c.log.WarnContext(ctx, "catalog cache get failed", "key", listKey, "error", err)
		}

		products, err = c.next.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.lists.Set(ctx, listKey, products); err != nil {
			c.log.WarnContext(ctx, "catalog cache set failed", "key", listKey, "error", err)
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]*domain.Product), nil
}

func (c *CachedStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	if err := c.next.CreateProduct(ctx, p); err != nil {
		return err
	}
	c.invalidate(p.ID)
	return nil
}

func (c *CachedStore) UpsertVariant(ctx context.Context, v *domain.Variant) error {
	if err := c.next.UpsertVariant(ctx, v); err != nil {
		return err
	}
	c.invalidate(v.ProductID)
	return nil
}

func (c *CachedStore) invalidate(productID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.client.Del(ctx, productKey(productID), listKey).Err(); err != nil {
		c.log.Warn("catalog cache invalidate failed", "product_id", productID, "error", err)
	}
}

func productKey(id string) string {
	return productPrefix + id
}
