package pricing

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/pickem/backend/internal/contracts"
	"github.com/wonny/pickem/backend/pkg/logger"
	"github.com/wonny/pickem/backend/pkg/redis"
)

// Cache holds resolved closing prices keyed by ticker and trading date.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, ticker string, date time.Time) (float64, bool)
	Set(ctx context.Context, ticker string, date time.Time, price float64) error
	Invalidate(ctx context.Context, ticker string, date time.Time) error
	Clear(ctx context.Context) error
	CleanStale(ctx context.Context) (int, error)
}

type cacheEntry struct {
	price    float64
	storedAt time.Time
}

// MemoryCache is an in-process TTL cache
// ⭐ SSOT: 종가 캐시는 Resolver에 명시적으로 주입 (전역 상태 없음)
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

// NewMemoryCache creates an empty cache; entries expire after ttl
func NewMemoryCache(ttl time.Duration, log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		logger:  log,
	}
}

func (c *MemoryCache) expired(e cacheEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) > c.ttl
}

// Get returns a live entry. Expired entries are misses.
func (c *MemoryCache) Get(_ context.Context, ticker string, date time.Time) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[redis.PriceKey(ticker, contracts.DateKey(date))]
	if !ok || c.expired(e, c.now()) {
		return 0, false
	}
	return e.price, true
}

// Set stores price
func (c *MemoryCache) Set(_ context.Context, ticker string, date time.Time, price float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[redis.PriceKey(ticker, contracts.DateKey(date))] = cacheEntry{price: price, storedAt: c.now()}
	return nil
}

// Invalidate drops one entry
func (c *MemoryCache) Invalidate(_ context.Context, ticker string, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, redis.PriceKey(ticker, contracts.DateKey(date)))
	return nil
}

// Clear drops everything
func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
	c.logger.Info("Cleared price cache")
	return nil
}

// CleanStale removes expired entries and reports how many
func (c *MemoryCache) CleanStale(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for key, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, key)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale prices from cache")
	}
	return count, nil
}

// Len returns the number of entries, live or not
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RedisCache stores prices through the shared Redis JSON cache.
// Redis expires keys on its own so CleanStale is a no-op.
type RedisCache struct {
	cache *redis.Cache
	ttl   time.Duration
}

// NewRedisCache wraps cache; ttl <= 0 falls back to a day
func NewRedisCache(cache *redis.Cache, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	return &RedisCache{cache: cache, ttl: ttl}
}

// Get treats Redis errors as misses so resolution can fall through
func (c *RedisCache) Get(ctx context.Context, ticker string, date time.Time) (float64, bool) {
	var price float64
	found, err := c.cache.Get(ctx, redis.PriceKey(ticker, contracts.DateKey(date)), &price)
	if err != nil || !found {
		return 0, false
	}
	return price, true
}

func (c *RedisCache) Set(ctx context.Context, ticker string, date time.Time, price float64) error {
	return c.cache.Set(ctx, redis.PriceKey(ticker, contracts.DateKey(date)), price, c.ttl)
}

func (c *RedisCache) Invalidate(ctx context.Context, ticker string, date time.Time) error {
	return c.cache.Delete(ctx, redis.PriceKey(ticker, contracts.DateKey(date)))
}

func (c *RedisCache) Clear(ctx context.Context) error {
	_, err := c.cache.DeleteMatching(ctx, "price:*")
	return err
}

func (c *RedisCache) CleanStale(context.Context) (int, error) {
	return 0, nil
}
