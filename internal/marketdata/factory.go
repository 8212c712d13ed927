package marketdata

import (
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/yourusername/krx-quant/internal/config"
)

// NewProvider builds the provider described by configuration: a CSV backed static
// provider when bars_file is set, otherwise the KIS client, wrapped in the
// configured cache.
func NewProvider(cfg config.MarketDataConfig, logger *logrus.Logger) (Provider, func() error, error) {
	if logger == nil {
		logger = logrus.New()
	}

	if cfg.BarsFile != "" {
		f, err := os.Open(cfg.BarsFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open bars file: %w", err)
		}
		defer f.Close()

		static, err := LoadCSV(f)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load bars file %s: %w", cfg.BarsFile, err)
		}
		logger.WithFields(logrus.Fields{"file": cfg.BarsFile, "symbols": len(static.Codes())}).Info("Loaded bars file")
		return static, func() error { return nil }, nil
	}

	httpCfg := DefaultHTTPClientConfig()
	httpCfg.Timeout = cfg.Timeout()
	httpCfg.MaxRetries = cfg.MaxRetries
	httpCfg.RateLimit = cfg.RateLimit
	httpCfg.CircuitBreakerMax = cfg.CircuitBreakerMax
	httpClient := NewRateLimitedHTTPClient(httpCfg, logger)

	var provider Provider = NewKISProvider(httpClient, KISConfig{
		BaseURL:   cfg.BaseURL,
		AppKey:    cfg.AppKey,
		AppSecret: cfg.AppSecret,
	}, logger)
	closers := []func() error{httpClient.Close}

	cache, closeCache, err := newCache(cfg.Cache)
	if err != nil {
		return nil, nil, err
	}
	if cache != nil {
		provider = NewCachedProvider(provider, cache, logger)
		closers = append(closers, closeCache)
	}

	closeAll := func() error {
		var firstErr error
		for _, c := range closers {
			if err := c(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	return provider, closeAll, nil
}

func newCache(cfg config.CacheConfig) (Cache, func() error, error) {
	ttl := cfg.TTL()
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	switch cfg.Backend {
	case "", "none":
		return nil, nil, nil
	case "memory":
		return NewMemoryCache(ttl), func() error { return nil }, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return NewRedisCache(client, ttl), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
