package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/krx-quant/internal/metrics"
	"github.com/yourusername/krx-quant/internal/models"
)

// Cache stores bar series by key
type Cache interface {
	Get(ctx context.Context, key string) ([]models.PriceBar, bool, error)
	Set(ctx context.Context, key string, bars []models.PriceBar) error
	Ping(ctx context.Context) error
	Backend() string
}

// MemoryCache is an in-process TTL cache
type MemoryCache struct {
	cache *cache.Cache
}

// NewMemoryCache creates a memory cache whose entries expire after ttl
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{cache: cache.New(ttl, 2*ttl)}
}

// Get returns a copy of the cached bars
func (c *MemoryCache) Get(_ context.Context, key string) ([]models.PriceBar, bool, error) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	bars, ok := v.([]models.PriceBar)
	if !ok {
		return nil, false, nil
	}
	return copyBars(bars), true, nil
}

// Set stores a copy of bars
func (c *MemoryCache) Set(_ context.Context, key string, bars []models.PriceBar) error {
	c.cache.SetDefault(key, copyBars(bars))
	return nil
}

// Ping always succeeds for the in-process cache
func (c *MemoryCache) Ping(context.Context) error {
	return nil
}

// Backend returns the backend name
func (c *MemoryCache) Backend() string {
	return "memory"
}

// RedisCache stores JSON encoded bars in Redis so several processes share fetches
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache creates a Redis backed cache
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "krx-quant:bars:"}
}

// Get loads bars from Redis
func (c *RedisCache) Get(ctx context.Context, key string) ([]models.PriceBar, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var bars []models.PriceBar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, false, fmt.Errorf("decode cached bars %s: %w", key, err)
	}
	return bars, true, nil
}

// Set stores bars in Redis with the configured TTL
func (c *RedisCache) Set(ctx context.Context, key string, bars []models.PriceBar) error {
	data, err := json.Marshal(bars)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the Redis connection
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Backend returns the backend name
func (c *RedisCache) Backend() string {
	return "redis"
}

// CachedProvider caches bar lookups of another provider. Cache failures are logged
// and fall through to the wrapped provider. Quotes are never cached.
type CachedProvider struct {
	provider Provider
	cache    Cache
	logger   *logrus.Entry
}

// NewCachedProvider wraps provider with cache
func NewCachedProvider(provider Provider, c Cache, logger *logrus.Logger) *CachedProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedProvider{
		provider: provider,
		cache:    c,
		logger:   logger.WithFields(logrus.Fields{"component": "marketdata_cache", "backend": c.Backend()}),
	}
}

// GetDailyPrices returns cached bars or fetches and caches them
func (p *CachedProvider) GetDailyPrices(ctx context.Context, stockCode string, count int) ([]models.PriceBar, error) {
	key := fmt.Sprintf("daily:%s:%d", stockCode, count)
	return p.cached(ctx, key, func() ([]models.PriceBar, error) {
		return p.provider.GetDailyPrices(ctx, stockCode, count)
	})
}

// GetPriceHistory returns cached bars or fetches and caches them
func (p *CachedProvider) GetPriceHistory(ctx context.Context, stockCode string, start, end time.Time) ([]models.PriceBar, error) {
	key := fmt.Sprintf("history:%s:%s:%s", stockCode, start.Format(kisDateLayout), end.Format(kisDateLayout))
	return p.cached(ctx, key, func() ([]models.PriceBar, error) {
		return p.provider.GetPriceHistory(ctx, stockCode, start, end)
	})
}

// GetCurrentPrice always calls the wrapped provider
func (p *CachedProvider) GetCurrentPrice(ctx context.Context, stockCode string) (*models.Quote, error) {
	return p.provider.GetCurrentPrice(ctx, stockCode)
}

// Check reports an unreachable cache, then defers to the wrapped provider
func (p *CachedProvider) Check(ctx context.Context) error {
	if err := p.cache.Ping(ctx); err != nil {
		return fmt.Errorf("%s cache: %w", p.cache.Backend(), err)
	}
	if c, ok := p.provider.(Checker); ok {
		return c.Check(ctx)
	}
	return nil
}

func (p *CachedProvider) cached(ctx context.Context, key string, fetch func() ([]models.PriceBar, error)) ([]models.PriceBar, error) {
	bars, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Cache lookup failed")
	}
	metrics.RecordCacheLookup(p.cache.Backend(), ok)
	if ok {
		return bars, nil
	}

	bars, err = fetch()
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, bars); err != nil {
		p.logger.WithError(err).WithField("key", key).Warn("Cache store failed")
	}
	return bars, nil
}

func copyBars(bars []models.PriceBar) []models.PriceBar {
	if bars == nil {
		return nil
	}
	out := make([]models.PriceBar, len(bars))
	copy(out, bars)
	return out
}
