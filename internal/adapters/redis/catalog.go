package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/robertarktes/ticket-storefront/internal/domain"
	"github.com/robertarktes/ticket-storefront/internal/observability"
)

const catalogListKey = "catalog:events"

// CachedCatalog is a read-through cache in front of another catalog.
// Concurrent misses for one key share a single backend call. Cache failures
// degrade to the backend.
type CachedCatalog struct {
	cache   *Cache
	backend domain.Catalog
	ttl     time.Duration
	logger  observability.Logger
	group   singleflight.Group
}

func NewCachedCatalog(cache *Cache, backend domain.Catalog, ttl time.Duration, logger observability.Logger) *CachedCatalog {
	return &CachedCatalog{cache: cache, backend: backend, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) Lookup(ctx context.Context, eventID string) (*domain.Event, error) {
	key := "catalog:event:" + eventID

	var ev domain.Event
	if c.get(ctx, key, &ev) {
		return &ev, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		found, err := c.backend.Lookup(ctx, eventID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, found)
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	copied := *v.(*domain.Event)
	return &copied, nil
}

func (c *CachedCatalog) List(ctx context.Context) ([]domain.Event, error) {
	var events []domain.Event
	if c.get(ctx, catalogListKey, &events) {
		return events, nil
	}

	v, err, _ := c.group.Do(catalogListKey, func() (interface{}, error) {
		found, err := c.backend.List(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, catalogListKey, found)
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]domain.Event)
	return append([]domain.Event(nil), shared...), nil
}

// Invalidate drops the cached copy of one event and the listing.
func (c *CachedCatalog) Invalidate(ctx context.Context, eventID string) error {
	return c.cache.Client().Del(ctx, "catalog:event:"+eventID, catalogListKey).Err()
}

func (c *CachedCatalog) get(ctx context.Context, key string, dst interface{}) bool {
	raw, err := c.cache.Client().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.WithField("key", key).Warn("catalog cache read failed", err)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.WithField("key", key).Warn("catalog cache entry corrupt", err)
		return false
	}
	return true
}

func (c *CachedCatalog) set(ctx context.Context, key string, v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Client().Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WithField("key", key).Warn("catalog cache write failed", err)
	}
}
