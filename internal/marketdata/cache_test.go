package marketdata

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/krx-quant/internal/config"
	"github.com/yourusername/krx-quant/internal/models"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) GetDailyPrices(ctx context.Context, code string, count int) ([]models.PriceBar, error) {
	args := m.Called(ctx, code, count)
	bars, _ := args.Get(0).([]models.PriceBar)
	return bars, args.Error(1)
}

func (m *mockProvider) GetPriceHistory(ctx context.Context, code string, start, end time.Time) ([]models.PriceBar, error) {
	args := m.Called(ctx, code, start, end)
	bars, _ := args.Get(0).([]models.PriceBar)
	return bars, args.Error(1)
}

func (m *mockProvider) GetCurrentPrice(ctx context.Context, code string) (*models.Quote, error) {
	args := m.Called(ctx, code)
	q, _ := args.Get(0).(*models.Quote)
	return q, args.Error(1)
}

func sampleBars() []models.PriceBar {
	d := time.Date(2024, 3, 4, 0, 0, 0, 0, KST)
	return []models.PriceBar{
		{Date: d, Close: 100, Volume: 10},
		{Date: d.AddDate(0, 0, 1), Close: 101, Volume: 11},
	}
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func TestMemoryCacheReturnsCopies(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	bars := sampleBars()
	require.NoError(t, c.Set(ctx, "k", bars))
	bars[0].Close = -1

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100.0, got[0].Close)

	got[1].Close = -1
	again, _, _ := c.Get(ctx, "k")
	assert.Equal(t, 101.0, again[1].Close)
}

func TestCachedProviderFetchesOnce(t *testing.T) {
	inner := &mockProvider{}
	inner.On("GetDailyPrices", mock.Anything, "005930", 60).Return(sampleBars(), nil).Once()

	p := NewCachedProvider(inner, NewMemoryCache(time.Minute), quietLogger())
	ctx := context.Background()

	first, err := p.GetDailyPrices(ctx, "005930", 60)
	require.NoError(t, err)
	second, err := p.GetDailyPrices(ctx, "005930", 60)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	inner.AssertExpectations(t)
}

func TestCachedProviderKeysByRange(t *testing.T) {
	inner := &mockProvider{}
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, KST)
	end1 := time.Date(2024, 3, 29, 0, 0, 0, 0, KST)
	end2 := time.Date(2024, 4, 30, 0, 0, 0, 0, KST)
	inner.On("GetPriceHistory", mock.Anything, "000660", start, end1).Return(sampleBars(), nil).Once()
	inner.On("GetPriceHistory", mock.Anything, "000660", start, end2).Return(sampleBars()[:1], nil).Once()

	p := NewCachedProvider(inner, NewMemoryCache(time.Minute), quietLogger())
	ctx := context.Background()

	a, err := p.GetPriceHistory(ctx, "000660", start, end1)
	require.NoError(t, err)
	b, err := p.GetPriceHistory(ctx, "000660", start, end2)
	require.NoError(t, err)
	_, err = p.GetPriceHistory(ctx, "000660", start, end1)
	require.NoError(t, err)

	assert.Len(t, a, 2)
	assert.Len(t, b, 1)
	inner.AssertExpectations(t)
}

func TestCachedProviderDoesNotCacheErrors(t *testing.T) {
	inner := &mockProvider{}
	inner.On("GetDailyPrices", mock.Anything, "035720", 30).
		Return(nil, NewProviderError("kis", ErrCodeServerError, "boom", nil)).Once()
	inner.On("GetDailyPrices", mock.Anything, "035720", 30).Return(sampleBars(), nil).Once()

	p := NewCachedProvider(inner, NewMemoryCache(time.Minute), quietLogger())
	ctx := context.Background()

	_, err := p.GetDailyPrices(ctx, "035720", 30)
	assert.ErrorIs(t, err, ErrServerError)

	bars, err := p.GetDailyPrices(ctx, "035720", 30)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
	inner.AssertExpectations(t)
}

func TestCachedProviderPassesQuotesThrough(t *testing.T) {
	inner := &mockProvider{}
	inner.On("GetCurrentPrice", mock.Anything, "005930").Return(&models.Quote{StockCode: "005930", Price: 70000}, nil).Twice()

	p := NewCachedProvider(inner, NewMemoryCache(time.Minute), quietLogger())
	for i := 0; i < 2; i++ {
		q, err := p.GetCurrentPrice(context.Background(), "005930")
		require.NoError(t, err)
		assert.Equal(t, 70000.0, q.Price)
	}
	inner.AssertExpectations(t)
}

func TestCachedProviderFallsThroughWhenRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	inner := &mockProvider{}
	inner.On("GetDailyPrices", mock.Anything, "005930", 10).Return(sampleBars(), nil)

	p := NewCachedProvider(inner, NewRedisCache(client, time.Minute), quietLogger())
	bars, err := p.GetDailyPrices(context.Background(), "005930", 10)
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestCachedProviderCheck(t *testing.T) {
	inner := &mockProvider{}
	p := NewCachedProvider(inner, NewMemoryCache(time.Minute), quietLogger())
	assert.NoError(t, p.Check(context.Background()))

	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	p = NewCachedProvider(inner, NewRedisCache(client, time.Minute), quietLogger())
	err := p.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis cache")
	inner.AssertNotCalled(t, "GetDailyPrices", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewCacheBackends(t *testing.T) {
	c, closeFn, err := newCache(config.CacheConfig{Backend: "memory", TTLSeconds: 60})
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Backend())
	assert.NoError(t, closeFn())

	c, _, err = newCache(config.CacheConfig{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, closeFn, err = newCache(config.CacheConfig{Backend: "redis", RedisAddr: "127.0.0.1:6379"})
	require.NoError(t, err)
	assert.Equal(t, "redis", c.Backend())
	assert.NoError(t, closeFn())

	_, _, err = newCache(config.CacheConfig{Backend: "memcached"})
	assert.Error(t, err)
}
