// Package cache keeps the last-known-good platform stage catalog in Redis,
// so a backend outage degrades to the most recent real catalog instead of
// the hardcoded default.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/incuhub/roadmap-sync/internal/models"
)

const catalogKey = "roadmap-sync:platform-catalog"

// ErrMiss is returned when no catalog is cached.
var ErrMiss = errors.New("catalog cache miss")

// CatalogCache stores the serialized stage catalog with a TTL.
type CatalogCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis at addr. TTL <= 0 defaults to 24h.
func New(addr string, ttl time.Duration) *CatalogCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CatalogCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
	}
}

// Get returns the cached catalog or ErrMiss.
func (c *CatalogCache) Get(ctx context.Context) ([]models.StageDefinition, error) {
	raw, err := c.rdb.Get(ctx, catalogKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("catalog cache get: %w", err)
	}
	var catalog []models.StageDefinition
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("catalog cache decode: %w", err)
	}
	if len(catalog) == 0 {
		return nil, ErrMiss
	}
	return catalog, nil
}

// Put stores the catalog, refreshing the TTL.
func (c *CatalogCache) Put(ctx context.Context, catalog []models.StageDefinition) error {
	if len(catalog) == 0 {
		return fmt.Errorf("refusing to cache empty catalog")
	}
	raw, err := json.Marshal(catalog)
	if err != nil {
		return fmt.Errorf("catalog cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, catalogKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("catalog cache set: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (c *CatalogCache) Close() error {
	return c.rdb.Close()
}
