// internal/store/cache.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"contract-runtime/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// Cached is a read-through decorator over another store. Only read-by-key is
// cached; list queries always hit the backing store. Mutations invalidate the
// cached record. Cache failures degrade to the inner store, never to errors.
type Cached struct {
	inner  Store
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCached(inner Store, client *redis.Client, ttl time.Duration, log logger.Logger) *Cached {
	return &Cached{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"store": "cached"}),
	}
}

func cacheKey(collection, key string) string {
	return fmt.Sprintf("rec:%s:%s", collection, key)
}

func (c *Cached) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	created, err := c.inner.Create(ctx, collection, rec)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, collection, created.Key())
	return created, nil
}

func (c *Cached) Read(ctx context.Context, collection, key string) (Record, error) {
	cached, err := c.client.Get(ctx, cacheKey(collection, key)).Result()
	if err == nil {
		var rec Record
		if err := json.Unmarshal([]byte(cached), &rec); err == nil {
			return rec, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("cache read failed", map[string]interface{}{
			"collection": collection,
			"key":        key,
			"error":      err,
		})
	}

	rec, err := c.inner.Read(ctx, collection, key)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(rec); err == nil {
		if err := c.client.Set(ctx, cacheKey(collection, key), data, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", map[string]interface{}{
				"collection": collection,
				"key":        key,
				"error":      err,
			})
		}
	}
	return rec, nil
}

func (c *Cached) Update(ctx context.Context, collection, key string, partial Record) (Record, error) {
	updated, err := c.inner.Update(ctx, collection, key, partial)
	if err != nil {
		return nil, err
	}
	c.invalidate(ctx, collection, key)
	return updated, nil
}

func (c *Cached) Delete(ctx context.Context, collection, key string) error {
	if err := c.inner.Delete(ctx, collection, key); err != nil {
		return err
	}
	c.invalidate(ctx, collection, key)
	return nil
}

func (c *Cached) Query(ctx context.Context, collection string, q Query) (Page, error) {
	return c.inner.Query(ctx, collection, q)
}

func (c *Cached) invalidate(ctx context.Context, collection, key string) {
	if err := c.client.Del(ctx, cacheKey(collection, key)).Err(); err != nil {
		c.logger.Warn("cache invalidation failed", map[string]interface{}{
			"collection": collection,
			"key":        key,
			"error":      err,
		})
	}
}
