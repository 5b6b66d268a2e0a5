package auction

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

// identityRand keeps the input order: Fisher-Yates swaps i with itself.
type identityRand struct{}

func (identityRand) Intn(n int) int { return n - 1 }

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func testSetup(participants, items int) Setup {
	s := Setup{
		AuctionID: "auc-1",
		LeagueID:  "league-1",
		Name:      "Spring draft",
		Settings: domain.Settings{
			BidTimerSeconds: 30,
			MinimumBid:      1,
			BidIncrement:    1,
		},
	}
	for i := 1; i <= participants; i++ {
		s.Participants = append(s.Participants, ParticipantSpec{ID: fmt.Sprintf("p%d", i), Budget: 100})
	}
	for i := 1; i <= items; i++ {
		s.Items = append(s.Items, ItemSpec{ID: fmt.Sprintf("item-%d", i)})
	}
	return s
}

func newTestEngine(t *testing.T, setup Setup) (*Engine, *FakeClock) {
	t.Helper()
	clock := NewFakeClock(t0)
	e, err := NewEngine(setup,
		WithClock(clock),
		WithRandSource(identityRand{}),
		WithIDGenerator(sequentialIDs()),
	)
	require.NoError(t, err)
	return e, clock
}

func startedEngine(t *testing.T, setup Setup) (*Engine, *FakeClock) {
	t.Helper()
	e, clock := newTestEngine(t, setup)
	_, err := e.Start()
	require.NoError(t, err)
	return e, clock
}

func TestScenario_NominateBidComplete(t *testing.T) {
	e, _ := startedEngine(t, testSetup(4, 4))
	require.Equal(t, "p1", e.Snapshot().CurrentNominatorID)

	_, err := e.Nominate("item-1", "p1", 5)
	require.NoError(t, err)

	snap := e.Snapshot()
	assert.Equal(t, "item-1", snap.CurrentItemID)
	assert.Equal(t, int64(5), snap.CurrentBid)
	assert.Equal(t, "p1", snap.CurrentHighBidderID)

	_, err = e.PlaceBid("item-1", "p2", 6)
	require.NoError(t, err)
	_, err = e.PlaceBid("item-1", "p3", 7)
	require.NoError(t, err)

	events, err := e.CompleteCurrentItem()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTeamSold, events[0].Type)
	assert.Equal(t, "item-1", events[0].EntityID)
	assert.Equal(t, "p3", events[0].ActorID)
	assert.Equal(t, int64(7), events[0].Amount)

	state := e.State()
	assert.Equal(t, domain.ItemStatusSold, state.Items[0].Status)
	assert.Equal(t, "p3", state.Items[0].SoldTo)
	assert.Equal(t, int64(7), state.Items[0].FinalPrice)

	b, err := e.Budget("p3")
	require.NoError(t, err)
	assert.Equal(t, int64(7), b.Spent)
	assert.Equal(t, int64(93), b.Remaining)
	assert.Equal(t, 1, b.OwnedCount)

	snap = e.Snapshot()
	assert.Equal(t, "p2", snap.CurrentNominatorID)
	assert.Equal(t, 1, snap.CurrentRound)
	assert.Equal(t, 1, state.Auction.NominationCursor)
	assert.Empty(t, snap.CurrentItemID)
	assert.Zero(t, snap.CurrentBid)
	assert.Nil(t, snap.BidDeadline)
	assert.Equal(t, 3, snap.RemainingItemCount)
	assert.Equal(t, 25.0, snap.ProgressPercent)
}

func TestStart_EmitsStartedWithOpeningNominator(t *testing.T) {
	e, clock := newTestEngine(t, testSetup(3, 3))

	events, err := e.Start()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAuctionStarted, events[0].Type)
	assert.Equal(t, "p1", events[0].Snapshot.CurrentNominatorID)
	assert.Equal(t, domain.AuctionStatusActive, events[0].Snapshot.Status)

	state := e.State()
	require.NotNil(t, state.Auction.StartTime)
	assert.Equal(t, clock.Now(), *state.Auction.StartTime)

	_, err = e.Start()
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestNominate_TurnViolationLeavesStateUnchanged(t *testing.T) {
	e, _ := startedEngine(t, testSetup(4, 4))
	before := e.State()

	_, err := e.Nominate("item-1", "p2", 5)
	require.ErrorIs(t, err, domain.ErrTurnViolation)
	assert.Equal(t, "TURN_VIOLATION", domain.ErrorCode(err))
	assert.Equal(t, before, e.State())
}

func TestNominate_Rejections(t *testing.T) {
	setup := testSetup(2, 3)
	setup.Settings.MinimumBid = 5
	e, _ := startedEngine(t, setup)

	tests := []struct {
		name    string
		itemID  string
		who     string
		amount  int64
		wantErr error
	}{
		{"unknown participant", "item-1", "ghost", 5, domain.ErrNotAParticipant},
		{"unknown item", "item-9", "p1", 5, domain.ErrItemUnavailable},
		{"below minimum", "item-1", "p1", 4, domain.ErrBidTooLow},
		{"over budget", "item-1", "p1", 101, domain.ErrInsufficientBudget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := e.State()
			_, err := e.Nominate(tt.itemID, tt.who, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, e.State())
		})
	}
}

func TestNominate_ItemAlreadyUpForBidding(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 3))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)

	_, err = e.Nominate("item-2", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestNominate_SoldItemUnavailable(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 3))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)

	_, err = e.Nominate("item-1", "p2", 1)
	assert.ErrorIs(t, err, domain.ErrItemUnavailable)
}

func TestNominate_RequiresActiveAuction(t *testing.T) {
	e, _ := newTestEngine(t, testSetup(2, 2))
	_, err := e.Nominate("item-1", "p1", 1)
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
}

func TestPlaceBid_WithoutIncrementIsTooLow(t *testing.T) {
	setup := testSetup(3, 3)
	setup.Settings.BidIncrement = 5
	e, _ := startedEngine(t, setup)
	_, err := e.Nominate("item-1", "p1", 10)
	require.NoError(t, err)
	before := e.State()

	_, err = e.PlaceBid("item-1", "p2", 10)
	require.ErrorIs(t, err, domain.ErrBidTooLow)
	_, err = e.PlaceBid("item-1", "p2", 14)
	require.ErrorIs(t, err, domain.ErrBidTooLow)

	assert.Equal(t, before, e.State())
	assert.Len(t, e.Bids("item-1"), 1)

	_, err = e.PlaceBid("item-1", "p2", 15)
	require.NoError(t, err)
}

func TestPlaceBid_Rejections(t *testing.T) {
	setup := testSetup(3, 3)
	setup.Participants[2].Budget = 8
	e, _ := startedEngine(t, setup)

	_, err := e.PlaceBid("item-1", "p2", 5)
	assert.ErrorIs(t, err, domain.ErrNoActiveItem)

	_, err = e.Nominate("item-1", "p1", 5)
	require.NoError(t, err)

	_, err = e.PlaceBid("item-2", "p2", 6)
	assert.ErrorIs(t, err, domain.ErrWrongItem)

	_, err = e.PlaceBid("item-1", "ghost", 6)
	assert.ErrorIs(t, err, domain.ErrNotAParticipant)

	_, err = e.PlaceBid("item-1", "p3", 9)
	assert.ErrorIs(t, err, domain.ErrInsufficientBudget)

	_, err = e.Pause("break")
	require.NoError(t, err)
	_, err = e.PlaceBid("item-1", "p2", 6)
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
}

func TestPlaceBid_ResetsDeadline(t *testing.T) {
	e, clock := startedEngine(t, testSetup(2, 2))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(30*time.Second), *e.Snapshot().BidDeadline)

	clock.Advance(25 * time.Second)
	_, err = e.PlaceBid("item-1", "p2", 2)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(55*time.Second), *e.Snapshot().BidDeadline)
}

func TestBids_ExactlyOneWinningAndStrictlyIncreasing(t *testing.T) {
	e, _ := startedEngine(t, testSetup(3, 2))
	_, err := e.Nominate("item-1", "p1", 2)
	require.NoError(t, err)
	for i, who := range []string{"p2", "p3", "p2", "p1"} {
		_, err := e.PlaceBid("item-1", who, int64(3+i))
		require.NoError(t, err)
	}

	history := e.Bids("item-1")
	require.Len(t, history, 5)
	winners := 0
	for i, b := range history {
		if i > 0 {
			assert.Greater(t, b.Amount, history[i-1].Amount)
		}
		if b.IsWinning {
			winners++
			assert.Equal(t, e.Snapshot().CurrentBid, b.Amount)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestPlaceBid_ConcurrentSubmissionsAreLinearized(t *testing.T) {
	e, _ := startedEngine(t, testSetup(8, 2))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 2; i <= 8; i++ {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				cur := e.Snapshot().CurrentBid
				_, _ = e.PlaceBid("item-1", who, cur+1)
			}
		}(fmt.Sprintf("p%d", i))
	}
	wg.Wait()

	history := e.Bids("item-1")
	winners := 0
	for i, b := range history {
		if i > 0 {
			assert.Greater(t, b.Amount, history[i-1].Amount)
		}
		if b.IsWinning {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, history[len(history)-1].Amount, e.Snapshot().CurrentBid)
}

func TestCompleteCurrentItem_Idempotent(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 3))
	_, err := e.Nominate("item-1", "p1", 3)
	require.NoError(t, err)

	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.ErrorIs(t, err, domain.ErrNoActiveItem)

	b, err := e.Budget("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), b.Spent)
	assert.Equal(t, 1, b.OwnedCount)
}

func TestCompleteCurrentItem_LastItemCompletesAuction(t *testing.T) {
	e, clock := startedEngine(t, testSetup(2, 1))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	events, err := e.CompleteCurrentItem()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTeamSold, events[0].Type)
	assert.Equal(t, domain.EventAuctionCompleted, events[1].Type)

	state := e.State()
	assert.Equal(t, domain.AuctionStatusCompleted, state.Auction.Status)
	assert.False(t, state.Auction.Irregular)
	assert.Empty(t, state.Auction.CurrentNominatorID)
	require.NotNil(t, state.Auction.EndTime)
	assert.Equal(t, clock.Now(), *state.Auction.EndTime)
	assert.Equal(t, 100.0, e.Snapshot().ProgressPercent)

	_, err = e.CompleteCurrentItem()
	assert.ErrorIs(t, err, domain.ErrNoActiveItem)
}

func TestCompleteIfDue_WaitsForDeadline(t *testing.T) {
	e, clock := startedEngine(t, testSetup(2, 2))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)

	clock.Advance(29 * time.Second)
	events, err := e.CompleteIfDue()
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = e.PlaceBid("item-1", "p2", 2)
	require.NoError(t, err)
	clock.Advance(29 * time.Second)
	events, err = e.CompleteIfDue()
	require.NoError(t, err)
	assert.Empty(t, events)

	clock.Advance(time.Second)
	events, err = e.CompleteIfDue()
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventTeamSold, events[0].Type)
	assert.Equal(t, "p2", events[0].ActorID)
}

func TestPauseResume_ShiftsDeadlineByPausedTime(t *testing.T) {
	e, clock := startedEngine(t, testSetup(2, 2))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)
	_, err = e.Pause("stream outage")
	require.NoError(t, err)
	before := e.State().Auction
	assert.Equal(t, "stream outage", e.Snapshot().PauseReason)

	clock.Advance(2 * time.Minute)
	events, err := e.Resume()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAuctionResumed, events[0].Type)
	after := e.State().Auction

	require.NotNil(t, after.ResumedAt)
	assert.Equal(t,
		before.BidDeadline.Sub(*before.PausedAt),
		after.BidDeadline.Sub(*after.ResumedAt),
	)
	assert.Equal(t, t0.Add(30*time.Second+2*time.Minute), *after.BidDeadline)
	assert.Equal(t, domain.AuctionStatusActive, after.Status)
	assert.Empty(t, after.PauseReason)
}

func TestPause_NoOpUnlessActive(t *testing.T) {
	e, _ := newTestEngine(t, testSetup(2, 2))
	events, err := e.Pause("early")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, domain.AuctionStatusScheduled, e.Snapshot().Status)
}

func TestResume_RequiresPaused(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 2))
	_, err := e.Resume()
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCompleteCurrentItem_WhilePaused(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 2))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)
	_, err = e.Pause("hold")
	require.NoError(t, err)

	_, err = e.CompleteCurrentItem()
	assert.ErrorIs(t, err, domain.ErrAuctionNotActive)
}

func TestAutoNominate_FirstAvailableAtMinimum(t *testing.T) {
	setup := testSetup(2, 3)
	setup.Settings.MinimumBid = 2
	e, _ := startedEngine(t, setup)
	_, err := e.Nominate("item-1", "p1", 2)
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)

	events, err := e.AutoNominate()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventTeamNominated, events[0].Type)

	snap := e.Snapshot()
	assert.Equal(t, "item-2", snap.CurrentItemID)
	assert.Equal(t, int64(2), snap.CurrentBid)
	assert.Equal(t, "p2", snap.CurrentHighBidderID)
}

func TestAutoNominateIfDue_AfterNominationTimeout(t *testing.T) {
	setup := testSetup(2, 2)
	setup.Settings.NominationTimeoutSeconds = 60
	e, clock := startedEngine(t, setup)

	snap := e.Snapshot()
	require.NotNil(t, snap.NominationDeadline)
	assert.Equal(t, t0.Add(time.Minute), *snap.NominationDeadline)

	clock.Advance(59 * time.Second)
	events, err := e.AutoNominateIfDue()
	require.NoError(t, err)
	assert.Empty(t, events)

	clock.Advance(time.Second)
	events, err = e.AutoNominateIfDue()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "item-1", e.Snapshot().CurrentItemID)
	assert.Nil(t, e.Snapshot().NominationDeadline)
}

func TestAutoNominateIfDue_DisabledWithoutTimeout(t *testing.T) {
	e, clock := startedEngine(t, testSetup(2, 2))
	clock.Advance(time.Hour)
	events, err := e.AutoNominateIfDue()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestWraparound_SkipsParticipantsWhoCannotNominate(t *testing.T) {
	setup := testSetup(2, 3)
	setup.Participants[1].Budget = 10
	e, _ := startedEngine(t, setup)

	// Schedule: p1, p2 | p2, p1
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)
	_, err = e.PlaceBid("item-1", "p2", 10)
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)

	state := e.State()
	assert.Equal(t, 3, state.Auction.NominationCursor)
	assert.Equal(t, 2, state.Auction.CurrentRound)
	assert.Equal(t, "p1", state.Auction.CurrentNominatorID)

	_, err = e.Nominate("item-2", "p1", 1)
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)

	state = e.State()
	assert.Equal(t, 0, state.Auction.NominationCursor)
	assert.Equal(t, 1, state.Auction.CurrentRound)
	assert.Equal(t, "p1", state.Auction.CurrentNominatorID)

	_, err = e.Nominate("item-3", "p1", 1)
	require.NoError(t, err)
	events, err := e.CompleteCurrentItem()
	require.NoError(t, err)
	assert.Equal(t, domain.EventAuctionCompleted, events[len(events)-1].Type)
}

func TestRosterCap_GatesBidsAndTurns(t *testing.T) {
	setup := testSetup(2, 4)
	setup.Settings.MaxItemsPerParticipant = 1
	e, _ := startedEngine(t, setup)

	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)

	_, err = e.Nominate("item-2", "p2", 1)
	require.NoError(t, err)
	_, err = e.PlaceBid("item-2", "p1", 2)
	require.ErrorIs(t, err, domain.ErrRosterFull)

	events, err := e.CompleteCurrentItem()
	require.NoError(t, err)
	// Nobody left under the cap: the auction ends with items unsold.
	assert.Equal(t, domain.EventAuctionCompleted, events[len(events)-1].Type)
	assert.Equal(t, 2, e.Snapshot().RemainingItemCount)
}

func TestSpentMatchesFinalPrices(t *testing.T) {
	e, _ := startedEngine(t, testSetup(3, 6))
	prices := []int64{4, 9, 2, 7, 11, 3}
	for i := 0; i < 6; i++ {
		snap := e.Snapshot()
		require.Equal(t, domain.AuctionStatusActive, snap.Status)
		nominator := snap.CurrentNominatorID
		item := fmt.Sprintf("item-%d", i+1)
		_, err := e.Nominate(item, nominator, 1)
		require.NoError(t, err)
		bidder := fmt.Sprintf("p%d", i%3+1)
		if bidder != nominator {
			_, err = e.PlaceBid(item, bidder, prices[i])
			require.NoError(t, err)
		}
		_, err = e.CompleteCurrentItem()
		require.NoError(t, err)
	}

	state := e.State()
	require.Equal(t, domain.AuctionStatusCompleted, state.Auction.Status)
	won := map[string]int64{}
	for _, it := range state.Items {
		won[it.SoldTo] += it.FinalPrice
	}
	for _, p := range state.Participants {
		assert.Equal(t, won[p.ID], p.Spent, p.ID)
		assert.LessOrEqual(t, p.Spent, p.Budget)
	}
}

func TestPlaceBid_HugeAmountAfterSpendIsRejected(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 3))
	_, err := e.Nominate("item-1", "p1", 5)
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)

	require.Equal(t, "p2", e.Snapshot().CurrentNominatorID)
	_, err = e.Nominate("item-2", "p2", 1)
	require.NoError(t, err)

	_, err = e.PlaceBid("item-2", "p1", math.MaxInt64)
	assert.ErrorIs(t, err, domain.ErrInsufficientBudget)

	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)
	b, err := e.Budget("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.Spent)
	assert.Equal(t, int64(95), b.Remaining)
	assert.Equal(t, 1, b.OwnedCount)
}

func TestForceComplete_WithdrawsOpenNomination(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 3))
	_, err := e.Nominate("item-1", "p1", 4)
	require.NoError(t, err)

	events, err := e.ForceComplete("venue closed")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAuctionCompleted, events[0].Type)
	assert.True(t, events[0].Snapshot.Irregular)

	state := e.State()
	assert.Equal(t, domain.AuctionStatusCompleted, state.Auction.Status)
	assert.Equal(t, "venue closed", state.Auction.CloseReason)
	assert.Equal(t, domain.ItemStatusAvailable, state.Items[0].Status)
	assert.Empty(t, state.Auction.CurrentItemID)
	for _, p := range state.Participants {
		assert.Zero(t, p.Spent)
	}
	for _, b := range state.Bids {
		assert.False(t, b.IsWinning, b.ID)
	}

	_, err = e.ForceComplete("again")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestForceComplete_FromScheduledAndPaused(t *testing.T) {
	e, _ := newTestEngine(t, testSetup(2, 2))
	_, err := e.ForceComplete("called off")
	require.NoError(t, err)

	e2, _ := startedEngine(t, testSetup(2, 2))
	_, err = e2.Pause("hold")
	require.NoError(t, err)
	_, err = e2.ForceComplete("called off")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusCompleted, e2.Snapshot().Status)
}

func TestCancel(t *testing.T) {
	e, _ := startedEngine(t, testSetup(2, 2))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)

	events, err := e.Cancel("league disbanded")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventAuctionCancelled, events[0].Type)

	state := e.State()
	assert.Equal(t, domain.AuctionStatusCancelled, state.Auction.Status)
	assert.Equal(t, domain.ItemStatusAvailable, state.Items[0].Status)
	require.Len(t, state.Bids, 1)
	assert.False(t, state.Bids[0].IsWinning)

	_, err = e.Cancel("again")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = e.Start()
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestResetOrder_OnlyBeforeStart(t *testing.T) {
	clock := NewFakeClock(t0)
	e, err := NewEngine(testSetup(4, 4), WithClock(clock), WithRandSource(identityRand{}))
	require.NoError(t, err)
	assert.Equal(t, "p1", e.State().DraftOrder[0].ParticipantID)

	e.rnd = &scriptedRand{seq: []int{0, 0, 0}}
	events, err := e.ResetOrder()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderReset, events[0].Type)
	state := e.State()
	assert.Equal(t, "p2", state.DraftOrder[0].ParticipantID)
	assert.Equal(t, "p2", state.NominationOrder[0].ParticipantID)

	_, err = e.Start()
	require.NoError(t, err)
	_, err = e.ResetOrder()
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRestore_ContinuesFromState(t *testing.T) {
	e, clock := startedEngine(t, testSetup(3, 3))
	_, err := e.Nominate("item-1", "p1", 2)
	require.NoError(t, err)
	_, err = e.PlaceBid("item-1", "p2", 3)
	require.NoError(t, err)

	restored, err := Restore(e.State(), WithClock(clock), WithIDGenerator(sequentialIDs()))
	require.NoError(t, err)
	assert.Equal(t, e.Snapshot(), restored.Snapshot())

	_, err = restored.PlaceBid("item-1", "p3", 4)
	require.NoError(t, err)
	winners := 0
	for _, b := range restored.Bids("item-1") {
		if b.IsWinning {
			winners++
			assert.Equal(t, "p3", b.BidderID)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestNewEngine_RejectsBadSetup(t *testing.T) {
	bad := testSetup(2, 2)
	bad.Settings.BidIncrement = 0
	_, err := NewEngine(bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	dup := testSetup(2, 2)
	dup.Items[1].ID = dup.Items[0].ID
	_, err = NewEngine(dup)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	empty := testSetup(0, 2)
	_, err = NewEngine(empty)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSnapshot_ProgressRounding(t *testing.T) {
	e, _ := startedEngine(t, testSetup(3, 3))
	_, err := e.Nominate("item-1", "p1", 1)
	require.NoError(t, err)
	_, err = e.CompleteCurrentItem()
	require.NoError(t, err)
	assert.Equal(t, 33.33, e.Snapshot().ProgressPercent)
	assert.Equal(t, 2, e.Snapshot().RemainingItemCount)
}
