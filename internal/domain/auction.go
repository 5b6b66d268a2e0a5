package domain

import "time"

// AuctionStatus tracks the auction lifecycle.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "scheduled"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusPaused    AuctionStatus = "paused"
	AuctionStatusCompleted AuctionStatus = "completed"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether no further regular mutation is allowed.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusCompleted || s == AuctionStatusCancelled
}

// ItemStatus tracks a catalog item within one auction.
type ItemStatus string

const (
	ItemStatusAvailable ItemStatus = "available"
	ItemStatusNominated ItemStatus = "nominated"
	ItemStatusSold      ItemStatus = "sold"
)

// Settings are the per-auction bidding parameters.
type Settings struct {
	BidTimerSeconds          int   `json:"bid_timer_seconds"`
	MinimumBid               int64 `json:"minimum_bid"`
	BidIncrement             int64 `json:"bid_increment"`
	MaxItemsPerParticipant   int   `json:"max_items_per_participant"` // 0 disables the cap
	NominationTimeoutSeconds int   `json:"nomination_timeout_seconds"`
}

// BidTimer returns the bid timer as a duration.
func (s Settings) BidTimer() time.Duration {
	return time.Duration(s.BidTimerSeconds) * time.Second
}

// NominationTimeout returns the nomination window, zero when disabled.
func (s Settings) NominationTimeout() time.Duration {
	return time.Duration(s.NominationTimeoutSeconds) * time.Second
}

// Auction is the root of the aggregate. Money is in whole budget units.
type Auction struct {
	ID                  string        `json:"id"`
	LeagueID            string        `json:"league_id"`
	Name                string        `json:"name"`
	Status              AuctionStatus `json:"status"`
	Settings            Settings      `json:"settings"`
	StartTime           *time.Time    `json:"start_time,omitempty"`
	EndTime             *time.Time    `json:"end_time,omitempty"`
	CurrentItemID       string        `json:"current_item_id,omitempty"`
	CurrentNominatorID  string        `json:"current_nominator_id,omitempty"`
	CurrentHighBidderID string        `json:"current_high_bidder_id,omitempty"`
	CurrentBid          int64         `json:"current_bid"`
	BidDeadline         *time.Time    `json:"bid_deadline,omitempty"`
	CurrentRound        int           `json:"current_round"`
	NominationCursor    int           `json:"nomination_cursor"`
	NominationOpenedAt  *time.Time    `json:"nomination_opened_at,omitempty"`
	PauseReason         string        `json:"pause_reason,omitempty"`
	PausedAt            *time.Time    `json:"paused_at,omitempty"`
	ResumedAt           *time.Time    `json:"resumed_at,omitempty"`
	Irregular           bool          `json:"irregular"`
	CloseReason         string        `json:"close_reason,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// ItemSlot is one catalog item inside an auction.
type ItemSlot struct {
	ItemID      string     `json:"item_id"`
	Name        string     `json:"name,omitempty"`
	Position    int        `json:"position"`
	Status      ItemStatus `json:"status"`
	NominatedBy string     `json:"nominated_by,omitempty"`
	NominatedAt *time.Time `json:"nominated_at,omitempty"`
	SoldTo      string     `json:"sold_to,omitempty"`
	SoldAt      *time.Time `json:"sold_at,omitempty"`
	FinalPrice  int64      `json:"final_price"`
}

// Participant is a roster member with a spending ceiling.
type Participant struct {
	ID           string     `json:"id"`
	Budget       int64      `json:"budget"`
	Spent        int64      `json:"spent"`
	OwnedItemIDs []string   `json:"owned_item_ids"`
	IsActive     bool       `json:"is_active"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// Remaining returns the unspent part of the budget.
func (p Participant) Remaining() int64 {
	return p.Budget - p.Spent
}

// Bid is one admitted offer on an item.
type Bid struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	ItemID    string    `json:"item_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	PlacedAt  time.Time `json:"placed_at"`
	IsWinning bool      `json:"is_winning"`
}

// DraftOrderEntry places a participant in the randomized turn order.
type DraftOrderEntry struct {
	ParticipantID string `json:"participant_id"`
	Position      int    `json:"position"` // 1-based
}

// NominationOrderEntry is one slot of the snake nomination schedule.
type NominationOrderEntry struct {
	Round         int    `json:"round"`
	Position      int    `json:"position"`
	ParticipantID string `json:"participant_id"`
	HasNominated  bool   `json:"has_nominated"`
}

// AuctionState is the full aggregate as persisted and restored.
type AuctionState struct {
	Auction         Auction                `json:"auction"`
	Items           []ItemSlot             `json:"items"`
	Participants    []Participant          `json:"participants"`
	DraftOrder      []DraftOrderEntry      `json:"draft_order"`
	NominationOrder []NominationOrderEntry `json:"nomination_order"`
	Bids            []Bid                  `json:"bids"`
}

// Snapshot is the read model handed to observers.
type Snapshot struct {
	AuctionID           string        `json:"auction_id"`
	Status              AuctionStatus `json:"status"`
	CurrentItemID       string        `json:"current_item_id,omitempty"`
	CurrentBid          int64         `json:"current_bid"`
	CurrentHighBidderID string        `json:"current_high_bidder_id,omitempty"`
	CurrentNominatorID  string        `json:"current_nominator_id,omitempty"`
	CurrentRound        int           `json:"current_round"`
	BidDeadline         *time.Time    `json:"bid_deadline,omitempty"`
	NominationDeadline  *time.Time    `json:"nomination_deadline,omitempty"`
	RemainingItemCount  int           `json:"remaining_item_count"`
	ProgressPercent     float64       `json:"progress_percent"`
	PauseReason         string        `json:"pause_reason,omitempty"`
	Irregular           bool          `json:"irregular"`
	CloseReason         string        `json:"close_reason,omitempty"`
}

// Budget is the per-participant budget view.
type Budget struct {
	ParticipantID string `json:"participant_id"`
	Budget        int64  `json:"budget"`
	Spent         int64  `json:"spent"`
	Remaining     int64  `json:"remaining"`
	OwnedCount    int    `json:"owned_count"`
}
