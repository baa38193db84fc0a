package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/quicktrade/secondsd/internal/blob/s3"
	"github.com/quicktrade/secondsd/internal/contract"
	"github.com/quicktrade/secondsd/internal/feed"
	"github.com/quicktrade/secondsd/internal/server"
	"github.com/quicktrade/secondsd/internal/server/handler"
	"github.com/quicktrade/secondsd/internal/server/ws"
	"github.com/quicktrade/secondsd/internal/service"
)

// TradeMode runs the contract pipeline: price feed, orchestrator, and the
// HTTP + WebSocket API.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startPipeline(ctx, g, deps)

	return g.Wait()
}

// MonitorMode runs the passive side: trade history polling, journal archival,
// and a read-only API (health, trades, journal, WebSocket relay).
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	historySvc := service.NewHistoryService(deps.Exchange, deps.SignalBus, a.logger)
	g.Go(func() error {
		return historySvc.Run(ctx, a.cfg.History.PollInterval.Duration)
	})

	a.startArchiver(ctx, g, deps)

	if a.cfg.Server.Enabled {
		hub := a.startHub(ctx, g, deps)
		a.startServer(ctx, g, server.Handlers{
			Health: handler.NewHealthHandler(a.logger),
			Trades: handler.NewTradeHandler(historySvc, deps.Journal, a.logger),
		}, hub)
	}

	return g.Wait()
}

// FullMode runs the trade pipeline plus the monitor-side pollers in one
// process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	historySvc := a.startPipeline(ctx, g, deps)
	g.Go(func() error {
		return historySvc.Run(ctx, a.cfg.History.PollInterval.Duration)
	})

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// startPipeline wires the active contract path: price service and feed,
// settlement trigger, reconciler, orchestrator, and (when enabled) the API
// server. It returns the history service for callers that also poll.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) *service.HistoryService {
	priceSvc := service.NewPriceService(deps.PriceCache, a.logger)

	if a.cfg.Feed.Enabled {
		binanceFeed := feed.NewBinanceFeed(
			a.cfg.Feed.WsHost,
			a.cfg.Feed.Symbols,
			priceSvc.HandlePrice,
			a.logger,
		)
		g.Go(func() error {
			defer binanceFeed.Close()
			return binanceFeed.Run(ctx)
		})
	}

	historySvc := service.NewHistoryService(deps.Exchange, deps.SignalBus, a.logger)

	trigger := contract.NewTrigger(deps.Exchange, a.logger)
	if deps.LockManager != nil {
		trigger.SetLockManager(deps.LockManager)
	}
	trigger.SetNotifier(deps.Notifier)

	reconciler := contract.NewReconciler(historySvc, deps.Journal, deps.SignalBus, a.logger)
	orch := contract.NewOrchestrator(deps.Exchange, trigger, reconciler, deps.Tiers, a.logger)

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = a.startHub(ctx, g, deps)
		orch.SetTickObserver(hub.BroadcastTick)
	}

	orch.Start(ctx)
	g.Go(func() error {
		<-ctx.Done()
		orch.StopAll()
		return ctx.Err()
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, server.Handlers{
			Health:    handler.NewHealthHandler(a.logger),
			Contracts: handler.NewContractHandler(orch, priceSvc, deps.Exchange, deps.Tiers, a.logger),
			Trades:    handler.NewTradeHandler(historySvc, deps.Journal, a.logger),
		}, hub)
	}

	return historySvc
}

// startHub starts the WebSocket hub on the errgroup.
func (a *App) startHub(ctx context.Context, g *errgroup.Group, deps *Dependencies) *ws.Hub {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})
	return hub
}

// startServer starts the HTTP server and its shutdown watcher.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, handlers server.Handlers, hub *ws.Hub) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

	g.Go(srv.Start)

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// startArchiver starts the journal archiver when blob storage is wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.BlobWriter == nil {
		return
	}

	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	archiver := s3blob.NewJournalArchiver(deps.BlobWriter, deps.Journal, retention, a.logger)
	g.Go(func() error {
		return archiver.Run(ctx, a.cfg.Archive.Interval.Duration)
	})

	a.logger.InfoContext(ctx, "journal archiver enabled",
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)
}
