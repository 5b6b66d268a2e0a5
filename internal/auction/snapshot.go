package auction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

const progressPrecision = 2

// Snapshot returns the observer view of the auction.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot()
}

func (e *Engine) snapshot() domain.Snapshot {
	a := e.auction
	sold := 0
	for _, it := range e.items {
		if it.Status == domain.ItemStatusSold {
			sold++
		}
	}
	return domain.Snapshot{
		AuctionID:           a.ID,
		Status:              a.Status,
		CurrentItemID:       a.CurrentItemID,
		CurrentBid:          a.CurrentBid,
		CurrentHighBidderID: a.CurrentHighBidderID,
		CurrentNominatorID:  a.CurrentNominatorID,
		CurrentRound:        a.CurrentRound,
		BidDeadline:         copyTime(a.BidDeadline),
		NominationDeadline:  e.nominationDeadline(),
		RemainingItemCount:  len(e.items) - sold,
		ProgressPercent:     progressPercent(sold, len(e.items)),
		PauseReason:         a.PauseReason,
		Irregular:           a.Irregular,
		CloseReason:         a.CloseReason,
	}
}

// nominationDeadline is when the current nominator's turn lapses, or nil
// when no turn is open or the auction has no nomination timeout.
func (e *Engine) nominationDeadline() *time.Time {
	a := e.auction
	timeout := a.Settings.NominationTimeout()
	if a.Status != domain.AuctionStatusActive || a.CurrentItemID != "" || a.NominationOpenedAt == nil || timeout <= 0 {
		return nil
	}
	return timePtr(a.NominationOpenedAt.Add(timeout))
}

func progressPercent(sold, total int) float64 {
	if total == 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(sold)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(progressPrecision)
	f, _ := pct.Float64()
	return f
}

// Budget returns one participant's budget view.
func (e *Engine) Budget(participantID string) (domain.Budget, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b, ok := e.budgets.Budget(participantID)
	if !ok {
		return domain.Budget{}, domain.NewAuctionError(domain.ErrNotAParticipant, participantID)
	}
	return b, nil
}

// Budgets returns the budget view of every participant.
func (e *Engine) Budgets() []domain.Budget {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]domain.Budget, 0, len(e.budgets.participants))
	for _, p := range e.budgets.participants {
		b, _ := e.budgets.Budget(p.ID)
		out = append(out, b)
	}
	return out
}

// Bids returns the bid history of one item, or of the whole auction when
// itemID is empty.
func (e *Engine) Bids(itemID string) []domain.Bid {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if itemID == "" {
		return e.bids.All()
	}
	return e.bids.History(itemID)
}

// BidCount returns the number of admitted bids.
func (e *Engine) BidCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bids.Len()
}

// State returns a deep copy of the aggregate for persistence.
func (e *Engine) State() domain.AuctionState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a := e.auction
	a.StartTime = copyTime(a.StartTime)
	a.EndTime = copyTime(a.EndTime)
	a.BidDeadline = copyTime(a.BidDeadline)
	a.NominationOpenedAt = copyTime(a.NominationOpenedAt)
	a.PausedAt = copyTime(a.PausedAt)
	a.ResumedAt = copyTime(a.ResumedAt)

	return domain.AuctionState{
		Auction:         a,
		Items:           append([]domain.ItemSlot(nil), e.items...),
		Participants:    e.budgets.All(),
		DraftOrder:      append([]domain.DraftOrderEntry(nil), e.draft...),
		NominationOrder: append([]domain.NominationOrderEntry(nil), e.schedule...),
		Bids:            e.bids.All(),
	}
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return timePtr(*t)
}
