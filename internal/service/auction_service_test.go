package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/leagueauction/internal/auction"
	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// --- fakes -----------------------------------------------------------------

type memStore struct {
	mu       sync.Mutex
	states   map[string][]byte
	saves    int
	gets     int
	failSave error
	onSave   func()
}

func newMemStore() *memStore {
	return &memStore{states: map[string][]byte{}}
}

func (m *memStore) put(state domain.AuctionState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return err
	}
	m.states[state.Auction.ID] = b
	return nil
}

func (m *memStore) Create(_ context.Context, state domain.AuctionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.states[state.Auction.ID]; ok {
		return domain.ErrAlreadyExists
	}
	return m.put(state)
}

func (m *memStore) Save(_ context.Context, state domain.AuctionState) error {
	if m.onSave != nil {
		m.onSave()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave != nil {
		return m.failSave
	}
	m.saves++
	return m.put(state)
}

func (m *memStore) Get(_ context.Context, id string) (domain.AuctionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	b, ok := m.states[id]
	if !ok {
		return domain.AuctionState{}, domain.ErrNotFound
	}
	var st domain.AuctionState
	err := json.Unmarshal(b, &st)
	return st, err
}

func (m *memStore) ListByStatus(_ context.Context, statuses []domain.AuctionStatus, _ domain.ListOpts) ([]domain.AuctionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuctionSummary
	for _, b := range m.states {
		var st domain.AuctionState
		if err := json.Unmarshal(b, &st); err != nil {
			return nil, err
		}
		for _, s := range statuses {
			if st.Auction.Status == s {
				out = append(out, domain.AuctionSummary{ID: st.Auction.ID, Status: s})
			}
		}
	}
	return out, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	stream    [][]byte
}

func newMemBus() *memBus { return &memBus{published: map[string][][]byte{}} }

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *memBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stream = append(b.stream, payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) eventTypes(channel string) []domain.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.EventType
	for _, p := range b.published[channel] {
		var ev domain.Event
		_ = json.Unmarshal(p, &ev)
		out = append(out, ev.Type)
	}
	return out
}

type memCache struct {
	mu    sync.Mutex
	snaps map[string]domain.Snapshot
}

func (c *memCache) Set(_ context.Context, snap domain.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[snap.AuctionID] = snap
	return nil
}

func (c *memCache) Get(_ context.Context, id string) (domain.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snaps[id]
	if !ok {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *memCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, id)
	return nil
}

type countingLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired int
}

func (l *countingLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	l.acquired++
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }
func (denyLimiter) Wait(context.Context, string) error                            { return nil }

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.events = append(n.events, event)
	return nil
}

type recordingResults struct {
	results []domain.AuctionResults
}

func (r *recordingResults) PublishResults(_ context.Context, res domain.AuctionResults) error {
	r.results = append(r.results, res)
	return nil
}

type recordingArchiver struct {
	archived []string
}

func (a *recordingArchiver) ArchiveAuction(_ context.Context, state domain.AuctionState) (string, error) {
	a.archived = append(a.archived, state.Auction.ID)
	return "archive/auctions/" + state.Auction.ID, nil
}

// --- helpers ---------------------------------------------------------------

var t0 = time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setup(participants, items int) auction.Setup {
	s := auction.Setup{
		AuctionID: "auc-1",
		Name:      "Test draft",
		Settings:  domain.Settings{BidTimerSeconds: 30, MinimumBid: 1, BidIncrement: 1},
	}
	for i := 1; i <= participants; i++ {
		s.Participants = append(s.Participants, auction.ParticipantSpec{ID: fmt.Sprintf("p%d", i), Budget: 100})
	}
	for i := 1; i <= items; i++ {
		s.Items = append(s.Items, auction.ItemSpec{ID: fmt.Sprintf("item-%d", i)})
	}
	return s
}

type fixture struct {
	svc      *AuctionService
	store    *memStore
	audit    *memAudit
	bus      *memBus
	cache    *memCache
	clock    *auction.FakeClock
	notifier *recordingNotifier
	archiver *recordingArchiver
	results  *recordingResults
}

func newFixture() *fixture {
	f := &fixture{
		store:    newMemStore(),
		audit:    &memAudit{},
		bus:      newMemBus(),
		cache:    &memCache{snaps: map[string]domain.Snapshot{}},
		clock:    auction.NewFakeClock(t0),
		notifier: &recordingNotifier{},
		archiver: &recordingArchiver{},
		results:  &recordingResults{},
	}
	f.svc = NewAuctionService(f.store, f.audit, discardLogger()).
		WithSignalBus(f.bus).
		WithSnapshotCache(f.cache).
		WithNotifier(f.notifier).
		WithArchiver(f.archiver).
		WithResultsPublisher(f.results).
		WithClock(f.clock)
	return f
}

// currentNominator reads the nominator from the store so tests do not
// depend on the shuffled draft order.
func currentNominator(t *testing.T, f *fixture) string {
	t.Helper()
	state, err := f.store.Get(context.Background(), "auc-1")
	require.NoError(t, err)
	return state.Auction.CurrentNominatorID
}

func otherThan(id string, n int) string {
	for i := 1; i <= n; i++ {
		if p := fmt.Sprintf("p%d", i); p != id {
			return p
		}
	}
	return ""
}

// --- tests -----------------------------------------------------------------

func TestAuctionService_FullItemCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	snap, err := f.svc.Create(ctx, setup(3, 3))
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusScheduled, snap.Status)

	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)
	nominator := currentNominator(t, f)
	bidder := otherThan(nominator, 3)

	_, err = f.svc.Nominate(ctx, "auc-1", "item-1", nominator, 4)
	require.NoError(t, err)
	snap, err = f.svc.PlaceBid(ctx, "auc-1", "item-1", bidder, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(9), snap.CurrentBid)
	assert.Equal(t, bidder, snap.CurrentHighBidderID)

	_, err = f.svc.CompleteCurrentItem(ctx, "auc-1")
	require.NoError(t, err)

	b, err := f.svc.Budget(ctx, "auc-1", bidder)
	require.NoError(t, err)
	assert.Equal(t, int64(9), b.Spent)

	stored, err := f.store.Get(ctx, "auc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ItemStatusSold, stored.Items[0].Status)
	assert.Len(t, stored.Bids, 2)

	assert.Equal(t, []domain.EventType{
		domain.EventAuctionStarted,
		domain.EventTeamNominated,
		domain.EventBidPlaced,
		domain.EventTeamSold,
	}, f.bus.eventTypes(domain.AuctionChannel("auc-1")))
	assert.Len(t, f.bus.stream, 4)
	assert.Contains(t, f.audit.events, "auction.created")
	assert.Contains(t, f.audit.events, "auction.team-sold")

	cached, err := f.cache.Get(ctx, "auc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cached.RemainingItemCount)
}

func TestAuctionService_RuleErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)
	saves := f.store.saves

	other := otherThan(currentNominator(t, f), 2)
	_, err = f.svc.Nominate(ctx, "auc-1", "item-1", other, 1)
	assert.ErrorIs(t, err, domain.ErrTurnViolation)
	assert.Equal(t, saves, f.store.saves)
}

func TestAuctionService_UnknownAuction(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Start(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.Budget(context.Background(), "missing", "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAuctionService_RateLimitedBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.svc.WithRateLimiter(denyLimiter{}, BidLimit{Limit: 5, Window: time.Second})
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)

	_, err = f.svc.PlaceBid(ctx, "auc-1", "item-1", "p1", 2)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestAuctionService_SaveFailureKeepsLastCommittedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)
	nominator := currentNominator(t, f)
	_, err = f.svc.Nominate(ctx, "auc-1", "item-1", nominator, 1)
	require.NoError(t, err)

	f.store.failSave = errors.New("connection reset")
	_, err = f.svc.PlaceBid(ctx, "auc-1", "item-1", otherThan(nominator, 2), 5)
	require.Error(t, err)
	f.store.failSave = nil

	bids, err := f.svc.Bids(ctx, "auc-1", "item-1")
	require.NoError(t, err)
	assert.Len(t, bids, 1)

	snap, err := f.svc.PlaceBid(ctx, "auc-1", "item-1", otherThan(nominator, 2), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), snap.CurrentBid)
}

func TestAuctionService_ReadersDoNotSeeUnsavedBids(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)
	nominator := currentNominator(t, f)
	_, err = f.svc.Nominate(ctx, "auc-1", "item-1", nominator, 1)
	require.NoError(t, err)

	var during []domain.Bid
	f.store.failSave = errors.New("connection reset")
	f.store.onSave = func() {
		during, err = f.svc.Bids(ctx, "auc-1", "item-1")
	}
	_, bidErr := f.svc.PlaceBid(ctx, "auc-1", "item-1", otherThan(nominator, 2), 5)
	require.Error(t, bidErr)
	require.NoError(t, err)
	assert.Len(t, during, 1)

	budget, err := f.svc.Budget(ctx, "auc-1", otherThan(nominator, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(0), budget.Spent)
}

func TestAuctionService_ResumesAfterRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)
	nominator := currentNominator(t, f)

	restarted := NewAuctionService(f.store, f.audit, discardLogger()).WithClock(f.clock)
	snap, err := restarted.Load(ctx, "auc-1")
	require.NoError(t, err)
	assert.Equal(t, nominator, snap.CurrentNominatorID)

	_, err = restarted.Nominate(ctx, "auc-1", "item-1", nominator, 3)
	require.NoError(t, err)
}

func TestAuctionService_ForceCompleteNotifiesAndArchives(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)

	snap, err := f.svc.ForceComplete(ctx, "auc-1", "storm")
	require.NoError(t, err)
	assert.True(t, snap.Irregular)
	assert.Equal(t, []string{"auction_irregular_close"}, f.notifier.events)
	assert.Equal(t, []string{"auc-1"}, f.archiver.archived)
	require.Len(t, f.results.results, 1)
	assert.True(t, f.results.results[0].Irregular)
	assert.Len(t, f.results.results[0].Unsold, 2)
}

func TestAuctionService_CancelNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, "auc-1", "league folded")
	require.NoError(t, err)
	assert.Equal(t, []string{"auction_cancelled"}, f.notifier.events)
	assert.Empty(t, f.archiver.archived)
	assert.Empty(t, f.results.results)
}

func TestAuctionService_PauseWhenIdleIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)

	snap, err := f.svc.Pause(ctx, "auc-1", "not started")
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusScheduled, snap.Status)
	assert.Zero(t, f.store.saves)
}

func TestAuctionService_CompleteIfDue(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)
	_, err = f.svc.Nominate(ctx, "auc-1", "item-1", currentNominator(t, f), 1)
	require.NoError(t, err)

	fired, err := f.svc.CompleteIfDue(ctx, "auc-1")
	require.NoError(t, err)
	assert.False(t, fired)

	f.clock.Advance(31 * time.Second)
	fired, err = f.svc.CompleteIfDue(ctx, "auc-1")
	require.NoError(t, err)
	assert.True(t, fired)

	ids, err := f.svc.ActiveAuctionIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"auc-1"}, ids)
}

func TestAuctionService_LockManagerReloadsFromStore(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	locks := &countingLocks{held: map[string]bool{}}
	f.svc.WithLockManager(locks, time.Second)

	_, err := f.svc.Create(ctx, setup(2, 2))
	require.NoError(t, err)

	// A second instance sharing the store and lock.
	peer := NewAuctionService(f.store, f.audit, discardLogger()).
		WithClock(f.clock).
		WithLockManager(locks, time.Second)

	_, err = peer.Start(ctx, "auc-1")
	require.NoError(t, err)

	nominator := currentNominator(t, f)
	snap, err := f.svc.Nominate(ctx, "auc-1", "item-1", nominator, 2)
	require.NoError(t, err)
	assert.Equal(t, "item-1", snap.CurrentItemID)
	assert.Equal(t, 2, locks.acquired)
}

func TestAuctionService_ConcurrentBidsPersistInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	_, err := f.svc.Create(ctx, setup(6, 2))
	require.NoError(t, err)
	_, err = f.svc.Start(ctx, "auc-1")
	require.NoError(t, err)
	_, err = f.svc.Nominate(ctx, "auc-1", "item-1", currentNominator(t, f), 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 6; i++ {
		wg.Add(1)
		go func(who string) {
			defer wg.Done()
			for amount := int64(2); amount <= 40; amount++ {
				_, _ = f.svc.PlaceBid(ctx, "auc-1", "item-1", who, amount)
			}
		}(fmt.Sprintf("p%d", i))
	}
	wg.Wait()

	stored, err := f.store.Get(ctx, "auc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), stored.Auction.CurrentBid)
	for i := 1; i < len(stored.Bids); i++ {
		assert.Greater(t, stored.Bids[i].Amount, stored.Bids[i-1].Amount)
	}
}
