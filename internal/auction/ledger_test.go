package auction

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

func TestBidLedger_AppendFlipsWinner(t *testing.T) {
	l := NewBidLedger(nil)
	l.Append(domain.Bid{ID: "b1", ItemID: "x", Amount: 1})
	l.Append(domain.Bid{ID: "b2", ItemID: "y", Amount: 3})
	l.Append(domain.Bid{ID: "b3", ItemID: "x", Amount: 2})

	w, ok := l.Winning("x")
	require.True(t, ok)
	assert.Equal(t, "b3", w.ID)

	hist := l.History("x")
	require.Len(t, hist, 2)
	assert.False(t, hist[0].IsWinning)
	assert.True(t, hist[1].IsWinning)

	w, ok = l.Winning("y")
	require.True(t, ok)
	assert.Equal(t, "b2", w.ID)

	_, ok = l.Winning("z")
	assert.False(t, ok)
	assert.Equal(t, 3, l.Len())
}

func TestBidLedger_RebuildFromStored(t *testing.T) {
	stored := []domain.Bid{
		{ID: "b1", ItemID: "x", Amount: 1},
		{ID: "b2", ItemID: "x", Amount: 2, IsWinning: true},
	}
	l := NewBidLedger(stored)
	l.Append(domain.Bid{ID: "b3", ItemID: "x", Amount: 3})

	all := l.All()
	assert.False(t, all[1].IsWinning)
	assert.True(t, all[2].IsWinning)
	// The caller's slice is not aliased.
	assert.True(t, stored[1].IsWinning)
}

func TestBidLedger_WithdrawClearsWinner(t *testing.T) {
	l := NewBidLedger(nil)
	l.Append(domain.Bid{ID: "b1", ItemID: "x", Amount: 1})
	l.Append(domain.Bid{ID: "b2", ItemID: "x", Amount: 2})

	l.Withdraw("x")
	_, ok := l.Winning("x")
	assert.False(t, ok)
	for _, b := range l.All() {
		assert.False(t, b.IsWinning, b.ID)
	}
	assert.Equal(t, 2, l.Len())

	l.Withdraw("missing")
	l.Append(domain.Bid{ID: "b3", ItemID: "x", Amount: 3})
	w, ok := l.Winning("x")
	require.True(t, ok)
	assert.Equal(t, "b3", w.ID)
}

func TestBudgetLedger(t *testing.T) {
	l := NewBudgetLedger([]domain.Participant{
		{ID: "a", Budget: 50, IsActive: true},
		{ID: "b", Budget: 20, IsActive: false},
	})

	assert.True(t, l.IsMember("a"))
	assert.False(t, l.IsMember("b"))
	assert.False(t, l.IsMember("c"))

	assert.True(t, l.CanAfford("a", 50))
	assert.False(t, l.CanAfford("a", 51))
	assert.False(t, l.CanAfford("c", 1))

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.Commit("a", "item-1", 30, at)

	b, ok := l.Budget("a")
	require.True(t, ok)
	assert.Equal(t, domain.Budget{ParticipantID: "a", Budget: 50, Spent: 30, Remaining: 20, OwnedCount: 1}, b)
	assert.True(t, l.CanAfford("a", 20))
	assert.False(t, l.CanAfford("a", 21))
	assert.False(t, l.CanAfford("a", math.MaxInt64))

	p, _ := l.Get("a")
	require.NotNil(t, p.LastActivity)
	assert.Equal(t, at, *p.LastActivity)

	copied := l.All()
	copied[0].OwnedItemIDs[0] = "tampered"
	p, _ = l.Get("a")
	assert.Equal(t, []string{"item-1"}, p.OwnedItemIDs)
}
