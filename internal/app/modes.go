package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/leagueauction/internal/scheduler"
	"github.com/alanyoungcy/leagueauction/internal/server"
	"github.com/alanyoungcy/leagueauction/internal/server/handler"
	"github.com/alanyoungcy/leagueauction/internal/server/ws"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP API and the WebSocket hub. Bid and nomination
// deadlines are left to a scheduler process.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// SchedulerMode runs the deadline watcher and the archive sweep.
func (a *App) SchedulerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting scheduler mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the HTTP API and the scheduler in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startScheduler(ctx, g, deps)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startScheduler adds the deadline watcher and, when an archive is
// configured, the cron-driven archive sweeper to the errgroup.
func (a *App) startScheduler(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	watcher := scheduler.NewDeadlineWatcher(deps.Auctions, a.cfg.Scheduler.TickInterval.Duration, a.logger)
	g.Go(func() error {
		return watcher.RunLoop(ctx)
	})

	if deps.Archiver == nil || a.cfg.Scheduler.ArchiveCron == "" {
		return
	}
	sweeper := scheduler.NewArchiveSweeper(deps.Auctions, deps.Archiver, a.cfg.Scheduler.ArchiveBatch, a.logger)
	g.Go(func() error {
		return sweeper.RunCron(ctx, a.cfg.Scheduler.ArchiveCron)
	})
}

// startHTTPServer adds an HTTP server goroutine to the given errgroup. It
// registers the WebSocket hub plus the REST handlers. The server is shut
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	health := handler.NewHealthHandler(a.cfg.Mode, a.logger).
		WithCheck("postgres", deps.Postgres).
		WithCheck("redis", deps.Redis)

	auctions := handler.NewAuctionHandler(deps.Auctions, handler.Defaults{
		Settings: a.cfg.Auction.Settings(),
		Budget:   a.cfg.Auction.DefaultBudget,
	}, a.logger)

	var archive handler.ArchiveReader
	if deps.Archiver != nil {
		archive = deps.Archiver
	}

	handlers := server.Handlers{
		Health:   health,
		Auctions: auctions,
		Archive:  handler.NewArchiveHandler(archive, deps.AuditStore, a.logger),
	}
	if a.cfg.Server.JWTSecret != "" {
		handlers.Tokens = handler.NewTokenHandler(a.cfg.Server.JWTSecret, a.cfg.Server.TokenTTL.Duration, a.logger)
	}

	// WebSocket hub, fed by the Redis SignalBus.
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
		Snapshots: deps.Auctions,
	})
	g.Go(func() error {
		if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("ws hub: %w", err)
		}
		return nil
	})

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		JWTSecret:   a.cfg.Server.JWTSecret,
		RateLimiter: deps.RateLimiter,
		RateLimit:   a.cfg.Server.RequestRateLimit,
		RateWindow:  a.cfg.Server.RequestRateWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
