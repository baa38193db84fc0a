package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quicktrade/secondsd/internal/domain"
)

// defaultPageSize is the history page requested on each refresh.
const defaultPageSize = 50

// HistorySource is the backend trade-history endpoint.
type HistorySource interface {
	ListTrades(ctx context.Context, status domain.TradeStatus, mode domain.TradeMode, page, limit int) ([]domain.TradeRecord, error)
}

// HistoryService refreshes the user's trade history by filter and announces
// each refresh on the signal bus. The backend owns the history itself; this
// service only re-fetches and fans out.
type HistoryService struct {
	source HistorySource
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewHistoryService creates a HistoryService. bus may be nil.
func NewHistoryService(source HistorySource, bus domain.SignalBus, logger *slog.Logger) *HistoryService {
	return &HistoryService{
		source: source,
		bus:    bus,
		logger: logger.With(slog.String("component", "history_service")),
	}
}

// Refresh fetches the first page of trades for the given status bucket and
// mode and publishes a history_refreshed event.
func (s *HistoryService) Refresh(ctx context.Context, status domain.TradeStatus, mode domain.TradeMode) ([]domain.TradeRecord, error) {
	trades, err := s.source.ListTrades(ctx, status, mode, 1, defaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("history_service: refresh: %w", err)
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":  "history_refreshed",
			"status": string(status),
			"mode":   string(mode),
			"count":  len(trades),
		})
		if pubErr := s.bus.Publish(ctx, domain.ChannelHistory, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "publish refresh event failed",
				slog.String("error", pubErr.Error()),
			)
		}
	}

	s.logger.DebugContext(ctx, "history refreshed",
		slog.String("status", string(status)),
		slog.String("mode", string(mode)),
		slog.Int("count", len(trades)),
	)

	return trades, nil
}

// Run polls the pending and completed buckets for the Seconds mode at the
// given interval until ctx is cancelled. Used by monitor mode to keep history
// consumers warm even when no contract is settling locally.
func (s *HistoryService) Run(ctx context.Context, interval time.Duration) error {
	s.logger.Info("history poller started", slog.Duration("interval", interval))
	defer s.logger.Info("history poller stopped")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, status := range []domain.TradeStatus{domain.TradeStatusPending, domain.TradeStatusCompleted} {
				if _, err := s.Refresh(ctx, status, domain.TradeModeSeconds); err != nil {
					s.logger.WarnContext(ctx, "poll refresh failed",
						slog.String("status", string(status)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}
