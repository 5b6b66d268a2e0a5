// Package scheduler drives time-based auction transitions. The engine
// never sleeps; the watcher here polls active auctions and calls back into
// the service once a bid deadline or a nomination window has lapsed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AuctionDriver is the part of the auction service the watcher calls.
type AuctionDriver interface {
	ActiveAuctionIDs(ctx context.Context) ([]string, error)
	CompleteIfDue(ctx context.Context, auctionID string) (bool, error)
	AutoNominateIfDue(ctx context.Context, auctionID string) (bool, error)
}

// DeadlineWatcher sells items whose bid timer ran out and nominates for
// participants who let their turn lapse.
type DeadlineWatcher struct {
	driver   AuctionDriver
	interval time.Duration
	logger   *slog.Logger
}

// NewDeadlineWatcher creates a watcher polling every interval.
func NewDeadlineWatcher(driver AuctionDriver, interval time.Duration, logger *slog.Logger) *DeadlineWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &DeadlineWatcher{
		driver:   driver,
		interval: interval,
		logger:   logger.With(slog.String("component", "deadline_watcher")),
	}
}

// Tick checks every active auction once and returns how many transitions
// it triggered. A failure on one auction does not stop the others.
func (w *DeadlineWatcher) Tick(ctx context.Context) (int, error) {
	ids, err := w.driver.ActiveAuctionIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("deadline_watcher: list active: %w", err)
	}

	fired := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return fired, ctx.Err()
		}
		sold, err := w.driver.CompleteIfDue(ctx, id)
		if err != nil {
			w.logger.WarnContext(ctx, "deadline_watcher: complete item failed",
				slog.String("auction_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if sold {
			fired++
			w.logger.InfoContext(ctx, "deadline_watcher: bid timer expired, item sold",
				slog.String("auction_id", id),
			)
			continue
		}

		nominated, err := w.driver.AutoNominateIfDue(ctx, id)
		if err != nil {
			w.logger.WarnContext(ctx, "deadline_watcher: auto-nominate failed",
				slog.String("auction_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		if nominated {
			fired++
			w.logger.InfoContext(ctx, "deadline_watcher: nomination window lapsed, auto-nominated",
				slog.String("auction_id", id),
			)
		}
	}
	return fired, nil
}

// RunLoop ticks until ctx is cancelled.
func (w *DeadlineWatcher) RunLoop(ctx context.Context) error {
	w.logger.Info("deadline watcher started", slog.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("deadline watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("deadline watcher tick failed", slog.String("error", err.Error()))
			}
		}
	}
}
