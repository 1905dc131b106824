// Package listing parses the property spreadsheet and caches the available
// listings for a bounded time.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"realestate-bot/internal/domain"
)

// DefaultTTL is how long a fetched listing is served before the next reader refetches.
const DefaultTTL = 5 * time.Minute

// Source returns the raw spreadsheet rows, header excluded.
type Source interface {
	Rows(ctx context.Context) ([][]string, error)
}

// Cache serves the available listing, refetching from Source once the TTL
// has elapsed. Concurrent readers past an expired TTL may each refetch.
type Cache struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	data      []domain.Property
	fetchedAt time.Time
	valid     bool
}

type Option func(*Cache)

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCache(src Source, opts ...Option) (*Cache, error) {
	if src == nil {
		return nil, errors.New("listing: source must not be nil")
	}
	c := &Cache{src: src, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Listings returns the available properties, fetching them when the cache
// is empty, expired or invalidated.
func (c *Cache) Listings(ctx context.Context) ([]domain.Property, error) {
	c.mu.RLock()
	if c.valid && c.now().Sub(c.fetchedAt) < c.ttl {
		data := c.data
		c.mu.RUnlock()
		return data, nil
	}
	c.mu.RUnlock()

	rows, err := c.src.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing: fetch rows: %w", err)
	}
	data := ParseRows(rows)

	c.mu.Lock()
	c.data = data
	c.fetchedAt = c.now()
	c.valid = true
	c.mu.Unlock()

	slog.Info("listing: loaded", "count", len(data), "rows", len(rows))
	return data, nil
}

// Invalidate forces the next Listings call to refetch regardless of TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	slog.Info("listing: cache invalidated")
}
