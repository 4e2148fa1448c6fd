// Package cache keeps serialized catalog responses in Redis so storefront
// page loads skip the database. Every failure degrades to a cache miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// CatalogKey holds the public product list.
const CatalogKey = "catalog:active"

// Catalog is a Redis-backed store for the public product list body.
type Catalog struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCatalog connects to redisURL and pings it. ttl bounds staleness when
// an admin write fails to invalidate.
func NewCatalog(ctx context.Context, redisURL string, ttl time.Duration) (*Catalog, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return newCatalog(rdb, ttl), nil
}

func newCatalog(rdb *redis.Client, ttl time.Duration) *Catalog {
	return &Catalog{rdb: rdb, ttl: ttl}
}

// Get returns the cached body and whether it was found.
func (c *Catalog) Get(ctx context.Context) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, CatalogKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("WARNING: catalog cache get: %v", err)
		}
		return nil, false
	}
	return b, true
}

// Set stores body under CatalogKey.
func (c *Catalog) Set(ctx context.Context, body []byte) {
	if err := c.rdb.Set(ctx, CatalogKey, body, c.ttl).Err(); err != nil {
		log.Printf("WARNING: catalog cache set: %v", err)
	}
}

// Invalidate drops the cached list; the next read repopulates it.
func (c *Catalog) Invalidate(ctx context.Context) {
	if err := c.rdb.Del(ctx, CatalogKey).Err(); err != nil {
		log.Printf("WARNING: catalog cache invalidate: %v", err)
	}
}

// Close releases the connection pool.
func (c *Catalog) Close() error {
	return c.rdb.Close()
}

// Noop is used when no Redis URL is configured.
type Noop struct{}

func (Noop) Get(context.Context) ([]byte, bool) { return nil, false }
func (Noop) Set(context.Context, []byte)         {}
func (Noop) Invalidate(context.Context)          {}
