package auction

import (
	"time"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// BidLedger is the append-only bid history of one auction. It keeps one
// winning bid per item: appending a bid demotes the previous winner.
type BidLedger struct {
	bids    []domain.Bid
	winning map[string]int // item id -> index into bids
}

// NewBidLedger rebuilds a ledger from stored bids.
func NewBidLedger(bids []domain.Bid) *BidLedger {
	l := &BidLedger{
		bids:    make([]domain.Bid, len(bids)),
		winning: make(map[string]int),
	}
	copy(l.bids, bids)
	for i, b := range l.bids {
		if b.IsWinning {
			l.winning[b.ItemID] = i
		}
	}
	return l
}

// Append records b as the new winning bid on its item.
func (l *BidLedger) Append(b domain.Bid) domain.Bid {
	if prev, ok := l.winning[b.ItemID]; ok {
		l.bids[prev].IsWinning = false
	}
	b.IsWinning = true
	l.bids = append(l.bids, b)
	l.winning[b.ItemID] = len(l.bids) - 1
	return b
}

// Winning returns the current winning bid on an item.
func (l *BidLedger) Winning(itemID string) (domain.Bid, bool) {
	i, ok := l.winning[itemID]
	if !ok {
		return domain.Bid{}, false
	}
	return l.bids[i], true
}

// Withdraw demotes the winning bid on an item that goes back unsold. The
// bids stay in the history.
func (l *BidLedger) Withdraw(itemID string) {
	if i, ok := l.winning[itemID]; ok {
		l.bids[i].IsWinning = false
		delete(l.winning, itemID)
	}
}

// History returns all bids on one item in admission order.
func (l *BidLedger) History(itemID string) []domain.Bid {
	var out []domain.Bid
	for _, b := range l.bids {
		if b.ItemID == itemID {
			out = append(out, b)
		}
	}
	return out
}

// All returns a copy of every bid in admission order.
func (l *BidLedger) All() []domain.Bid {
	out := make([]domain.Bid, len(l.bids))
	copy(out, l.bids)
	return out
}

// Len returns the number of admitted bids.
func (l *BidLedger) Len() int { return len(l.bids) }

// BudgetLedger tracks committed spend and ownership per participant.
// Spend only changes in Commit; validation reads Remaining.
type BudgetLedger struct {
	participants []domain.Participant
	index        map[string]int
}

// NewBudgetLedger copies the roster into a ledger.
func NewBudgetLedger(participants []domain.Participant) *BudgetLedger {
	l := &BudgetLedger{
		participants: make([]domain.Participant, len(participants)),
		index:        make(map[string]int, len(participants)),
	}
	for i, p := range participants {
		p.OwnedItemIDs = append([]string(nil), p.OwnedItemIDs...)
		l.participants[i] = p
		l.index[p.ID] = i
	}
	return l
}

// Get returns a participant by id.
func (l *BudgetLedger) Get(id string) (domain.Participant, bool) {
	i, ok := l.index[id]
	if !ok {
		return domain.Participant{}, false
	}
	return l.participants[i], true
}

// IsMember reports whether id is an active roster member.
func (l *BudgetLedger) IsMember(id string) bool {
	p, ok := l.Get(id)
	return ok && p.IsActive
}

// Remaining returns budget minus spent.
func (l *BudgetLedger) Remaining(id string) int64 {
	p, _ := l.Get(id)
	return p.Remaining()
}

// CanAfford reports whether spent+amount stays within the budget. The
// comparison is against the remainder so a huge amount cannot overflow.
func (l *BudgetLedger) CanAfford(id string, amount int64) bool {
	p, ok := l.Get(id)
	return ok && amount <= p.Budget-p.Spent
}

// OwnedCount returns how many items a participant has won.
func (l *BudgetLedger) OwnedCount(id string) int {
	p, _ := l.Get(id)
	return len(p.OwnedItemIDs)
}

// Commit charges price to the winner and records ownership.
func (l *BudgetLedger) Commit(id, itemID string, price int64, at time.Time) {
	i, ok := l.index[id]
	if !ok {
		return
	}
	p := &l.participants[i]
	p.Spent += price
	p.OwnedItemIDs = append(p.OwnedItemIDs, itemID)
	p.LastActivity = timePtr(at)
}

// Touch records participant activity.
func (l *BudgetLedger) Touch(id string, at time.Time) {
	if i, ok := l.index[id]; ok {
		l.participants[i].LastActivity = timePtr(at)
	}
}

// Budget returns the public budget view of one participant.
func (l *BudgetLedger) Budget(id string) (domain.Budget, bool) {
	p, ok := l.Get(id)
	if !ok {
		return domain.Budget{}, false
	}
	return domain.Budget{
		ParticipantID: p.ID,
		Budget:        p.Budget,
		Spent:         p.Spent,
		Remaining:     p.Remaining(),
		OwnedCount:    len(p.OwnedItemIDs),
	}, true
}

// All returns a deep copy of the roster.
func (l *BudgetLedger) All() []domain.Participant {
	out := make([]domain.Participant, len(l.participants))
	for i, p := range l.participants {
		p.OwnedItemIDs = append([]string{}, p.OwnedItemIDs...)
		out[i] = p
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
