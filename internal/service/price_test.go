package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicktrade/secondsd/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePriceCache is an in-memory stand-in for the Redis price cache.
type fakePriceCache struct {
	mu      sync.Mutex
	prices  map[string]float64
	stamps  map[string]time.Time
	setErr  error
	getErr  error
	setHits int
}

func newFakePriceCache() *fakePriceCache {
	return &fakePriceCache{
		prices: make(map[string]float64),
		stamps: make(map[string]time.Time),
	}
}

func (c *fakePriceCache) SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setHits++
	if c.setErr != nil {
		return c.setErr
	}
	c.prices[symbol] = price
	c.stamps[symbol] = ts
	return nil
}

func (c *fakePriceCache) GetPrice(ctx context.Context, symbol string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return 0, time.Time{}, c.getErr
	}
	p, ok := c.prices[symbol]
	if !ok {
		return 0, time.Time{}, domain.ErrNoPrice
	}
	return p, c.stamps[symbol], nil
}

func TestPriceServiceLatestFromMemory(t *testing.T) {
	svc := NewPriceService(nil, testLogger())
	svc.HandlePrice(context.Background(), "btcusdt", 65_000, time.Now())

	price, err := svc.Latest(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 65_000.0, price)
}

func TestPriceServiceUnknownSymbol(t *testing.T) {
	svc := NewPriceService(nil, testLogger())

	_, err := svc.Latest(context.Background(), "DOGEUSDT")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestPriceServiceStalePriceRejected(t *testing.T) {
	svc := NewPriceService(nil, testLogger())
	svc.HandlePrice(context.Background(), "BTCUSDT", 65_000, time.Now().Add(-time.Minute))

	_, err := svc.Latest(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrNoPrice)
}

func TestPriceServiceWritesThroughToCache(t *testing.T) {
	cache := newFakePriceCache()
	svc := NewPriceService(cache, testLogger())

	svc.HandlePrice(context.Background(), " ethusdt ", 3_200, time.Now())

	price, _, err := cache.GetPrice(context.Background(), "ETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 3_200.0, price)
}

func TestPriceServiceFallsBackToCache(t *testing.T) {
	cache := newFakePriceCache()
	require.NoError(t, cache.SetPrice(context.Background(), "BTCUSDT", 64_500, time.Now()))

	// Fresh service with an empty memory map; only the shared cache knows
	// the price.
	svc := NewPriceService(cache, testLogger())

	price, err := svc.Latest(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 64_500.0, price)
}

func TestPriceServiceCacheWriteFailureIsNonFatal(t *testing.T) {
	cache := newFakePriceCache()
	cache.setErr = errors.New("redis down")
	svc := NewPriceService(cache, testLogger())

	svc.HandlePrice(context.Background(), "BTCUSDT", 65_000, time.Now())

	// Memory still serves.
	price, err := svc.Latest(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 65_000.0, price)
}
