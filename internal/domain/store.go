package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuctionSummary is a light row for listings.
type AuctionSummary struct {
	ID        string        `json:"id"`
	LeagueID  string        `json:"league_id"`
	Name      string        `json:"name"`
	Status    AuctionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AuctionStore persists the auction aggregate. Save writes the aggregate
// root, slots, participants and schedule, and appends any bids not yet
// stored; it is called once per committed mutation.
type AuctionStore interface {
	Create(ctx context.Context, state AuctionState) error
	Save(ctx context.Context, state AuctionState) error
	Get(ctx context.Context, id string) (AuctionState, error)
	ListByStatus(ctx context.Context, statuses []AuctionStatus, opts ListOpts) ([]AuctionSummary, error)
}

// BidStore reads the append-only bid history.
type BidStore interface {
	ListByAuction(ctx context.Context, auctionID string, opts ListOpts) ([]Bid, error)
	ListByItem(ctx context.Context, auctionID, itemID string) ([]Bid, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
