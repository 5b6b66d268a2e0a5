package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// ArchiveSource lists finished auctions and loads them for archival.
type ArchiveSource interface {
	List(ctx context.Context, statuses []domain.AuctionStatus, opts domain.ListOpts) ([]domain.AuctionSummary, error)
	State(ctx context.Context, auctionID string) (domain.AuctionState, error)
}

// ArchiveSweeper archives completed auctions that were missed at close
// time, for example because object storage was unreachable.
type ArchiveSweeper struct {
	source   ArchiveSource
	archiver domain.Archiver
	batch    int
	logger   *slog.Logger
}

// NewArchiveSweeper creates a sweeper handling up to batch auctions per run.
func NewArchiveSweeper(source ArchiveSource, archiver domain.Archiver, batch int, logger *slog.Logger) *ArchiveSweeper {
	if batch <= 0 {
		batch = 100
	}
	return &ArchiveSweeper{
		source:   source,
		archiver: archiver,
		batch:    batch,
		logger:   logger.With(slog.String("component", "archive_sweeper")),
	}
}

// Run archives every completed auction once. The archiver skips auctions
// already present in storage, so reruns are cheap.
func (s *ArchiveSweeper) Run(ctx context.Context) (int, error) {
	rows, err := s.source.List(ctx, []domain.AuctionStatus{domain.AuctionStatusCompleted}, domain.ListOpts{Limit: s.batch})
	if err != nil {
		return 0, fmt.Errorf("archive_sweeper: list completed: %w", err)
	}

	archived := 0
	for _, row := range rows {
		state, err := s.source.State(ctx, row.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "archive_sweeper: load failed",
				slog.String("auction_id", row.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		path, err := s.archiver.ArchiveAuction(ctx, state)
		if err != nil {
			s.logger.WarnContext(ctx, "archive_sweeper: archive failed",
				slog.String("auction_id", row.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		archived++
		s.logger.DebugContext(ctx, "archive_sweeper: auction archived",
			slog.String("auction_id", row.ID),
			slog.String("path", path),
		)
	}

	s.logger.Info("archive sweep complete",
		slog.Int("candidates", len(rows)),
		slog.Int("archived", archived),
	)
	return archived, nil
}

// RunCron runs the sweeper on a 5-field cron schedule until ctx is
// cancelled.
func (s *ArchiveSweeper) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("archive_sweeper: cron %q: %w", cronExpr, err)
	}
	s.logger.Info("archive sweeper started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archive_sweeper: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("archive sweeper stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := s.Run(ctx); err != nil {
				s.logger.Error("archive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
