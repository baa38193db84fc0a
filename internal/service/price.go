// Package service holds the thin application services between the transport
// layer and the domain: reference prices and trade history.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// maxPriceAge is how old a cached reference price may be before it is
// considered unusable for opening a contract.
const maxPriceAge = 30 * time.Second

// PriceService tracks the latest reference price per instrument symbol. The
// feed writes through to an in-memory map and, when configured, to the Redis
// price cache so other processes see the same reference.
type PriceService struct {
	cache  domain.PriceCache
	logger *slog.Logger

	mu     sync.RWMutex
	latest map[string]pricePoint
}

type pricePoint struct {
	price float64
	ts    time.Time
}

// NewPriceService creates a PriceService. cache may be nil (memory only).
func NewPriceService(cache domain.PriceCache, logger *slog.Logger) *PriceService {
	return &PriceService{
		cache:  cache,
		logger: logger.With(slog.String("component", "price_service")),
		latest: make(map[string]pricePoint),
	}
}

// HandlePrice records a new price observation. Called by the feed for every
// ticker message.
func (s *PriceService) HandlePrice(ctx context.Context, symbol string, price float64, ts time.Time) {
	key := normalizeSymbol(symbol)

	s.mu.Lock()
	s.latest[key] = pricePoint{price: price, ts: ts}
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, key, price, ts); err != nil {
			s.logger.WarnContext(ctx, "price cache write failed",
				slog.String("symbol", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Latest returns the freshest known price for symbol. It prefers the
// in-memory observation and falls back to the shared cache; a price older
// than maxPriceAge yields domain.ErrNoPrice.
func (s *PriceService) Latest(ctx context.Context, symbol string) (float64, error) {
	key := normalizeSymbol(symbol)
	now := time.Now()

	s.mu.RLock()
	p, ok := s.latest[key]
	s.mu.RUnlock()

	if ok && now.Sub(p.ts) <= maxPriceAge {
		return p.price, nil
	}

	if s.cache != nil {
		price, ts, err := s.cache.GetPrice(ctx, key)
		if err == nil && now.Sub(ts) <= maxPriceAge {
			return price, nil
		}
	}

	return 0, domain.ErrNoPrice
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
