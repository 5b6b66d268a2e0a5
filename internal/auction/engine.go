package auction

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// ParticipantSpec is one roster member supplied at setup.
type ParticipantSpec struct {
	ID     string `json:"id"`
	Budget int64  `json:"budget"`
}

// ItemSpec is one catalog entry supplied at setup.
type ItemSpec struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Setup carries everything needed to create a new auction.
type Setup struct {
	AuctionID    string            `json:"auction_id"`
	LeagueID     string            `json:"league_id"`
	Name         string            `json:"name"`
	Settings     domain.Settings   `json:"settings"`
	Participants []ParticipantSpec `json:"participants"`
	Items        []ItemSpec        `json:"items"`
}

// Validate checks the setup parameters.
func (s Setup) Validate() error {
	if s.AuctionID == "" {
		return fmt.Errorf("auction: setup: %w: auction id is required", domain.ErrInvalidInput)
	}
	if len(s.Participants) == 0 {
		return fmt.Errorf("auction: setup: %w: at least one participant is required", domain.ErrInvalidInput)
	}
	if len(s.Items) == 0 {
		return fmt.Errorf("auction: setup: %w: at least one item is required", domain.ErrInvalidInput)
	}
	if s.Settings.BidTimerSeconds <= 0 {
		return fmt.Errorf("auction: setup: %w: bid timer must be positive", domain.ErrInvalidInput)
	}
	if s.Settings.MinimumBid <= 0 {
		return fmt.Errorf("auction: setup: %w: minimum bid must be positive", domain.ErrInvalidInput)
	}
	if s.Settings.BidIncrement <= 0 {
		return fmt.Errorf("auction: setup: %w: bid increment must be positive", domain.ErrInvalidInput)
	}
	if s.Settings.MaxItemsPerParticipant < 0 || s.Settings.NominationTimeoutSeconds < 0 {
		return fmt.Errorf("auction: setup: %w: caps and timeouts cannot be negative", domain.ErrInvalidInput)
	}

	seen := make(map[string]struct{}, len(s.Participants))
	for _, p := range s.Participants {
		if p.ID == "" {
			return fmt.Errorf("auction: setup: %w: participant id is required", domain.ErrInvalidInput)
		}
		if p.Budget < 0 {
			return fmt.Errorf("auction: setup: %w: participant %s has a negative budget", domain.ErrInvalidInput, p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("auction: setup: %w: duplicate participant %s", domain.ErrInvalidInput, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	seen = make(map[string]struct{}, len(s.Items))
	for _, it := range s.Items {
		if it.ID == "" {
			return fmt.Errorf("auction: setup: %w: item id is required", domain.ErrInvalidInput)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("auction: setup: %w: duplicate item %s", domain.ErrInvalidInput, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithRandSource overrides the draft order shuffle source.
func WithRandSource(r RandSource) Option {
	return func(e *Engine) { e.rnd = r }
}

// WithIDGenerator overrides how bid and event ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// Engine is the auction aggregate. Every mutating method validates fully
// before touching state, so a returned error means nothing changed. All
// methods are safe for concurrent use; mutations are linearized by mu.
type Engine struct {
	mu sync.RWMutex

	clock Clock
	rnd   RandSource
	newID func() string

	auction   domain.Auction
	items     []domain.ItemSlot
	itemIndex map[string]int
	budgets   *BudgetLedger
	bids      *BidLedger
	draft     []domain.DraftOrderEntry
	schedule  []domain.NominationOrderEntry
}

func newEngine(opts []Option) *Engine {
	e := &Engine{
		clock: SystemClock{},
		rnd:   DefaultRandSource,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NewEngine builds a scheduled auction from setup parameters: item slots
// are created available, the draft order is shuffled and expanded into the
// snake nomination schedule.
func NewEngine(setup Setup, opts ...Option) (*Engine, error) {
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	e := newEngine(opts)
	now := e.clock.Now()

	e.auction = domain.Auction{
		ID:        setup.AuctionID,
		LeagueID:  setup.LeagueID,
		Name:      setup.Name,
		Status:    domain.AuctionStatusScheduled,
		Settings:  setup.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	participants := make([]domain.Participant, len(setup.Participants))
	for i, p := range setup.Participants {
		participants[i] = domain.Participant{
			ID:           p.ID,
			Budget:       p.Budget,
			OwnedItemIDs: []string{},
			IsActive:     true,
		}
	}
	e.budgets = NewBudgetLedger(participants)
	e.bids = NewBidLedger(nil)

	e.items = make([]domain.ItemSlot, len(setup.Items))
	for i, it := range setup.Items {
		e.items[i] = domain.ItemSlot{
			ItemID:   it.ID,
			Name:     it.Name,
			Position: i + 1,
			Status:   domain.ItemStatusAvailable,
		}
	}
	e.indexItems()

	if err := e.generateOrder(); err != nil {
		return nil, err
	}
	return e, nil
}

// Restore rehydrates an engine from persisted state.
func Restore(state domain.AuctionState, opts ...Option) (*Engine, error) {
	if state.Auction.ID == "" {
		return nil, fmt.Errorf("auction: restore: %w: missing auction id", domain.ErrInvalidInput)
	}
	if len(state.Items) == 0 || len(state.Participants) == 0 {
		return nil, fmt.Errorf("auction: restore %s: %w: empty roster or catalog", state.Auction.ID, domain.ErrInvalidInput)
	}
	e := newEngine(opts)
	e.auction = state.Auction
	e.items = append([]domain.ItemSlot(nil), state.Items...)
	sort.Slice(e.items, func(i, j int) bool { return e.items[i].Position < e.items[j].Position })
	e.indexItems()
	e.budgets = NewBudgetLedger(state.Participants)
	e.bids = NewBidLedger(state.Bids)
	e.draft = append([]domain.DraftOrderEntry(nil), state.DraftOrder...)
	e.schedule = append([]domain.NominationOrderEntry(nil), state.NominationOrder...)
	return e, nil
}

func (e *Engine) indexItems() {
	e.itemIndex = make(map[string]int, len(e.items))
	for i, it := range e.items {
		e.itemIndex[it.ItemID] = i
	}
}

func (e *Engine) generateOrder() error {
	var ids []string
	for _, p := range e.budgets.All() {
		if p.IsActive {
			ids = append(ids, p.ID)
		}
	}
	draft, err := GenerateDraftOrder(ids, e.rnd)
	if err != nil {
		return err
	}
	e.draft = draft
	e.schedule = GenerateNominationOrder(draft, len(e.items))
	return nil
}

// ID returns the auction id.
func (e *Engine) ID() string { return e.auction.ID }

// ResetOrder discards the draft order and schedule and regenerates them
// from the current roster. Only allowed before the auction starts.
func (e *Engine) ResetOrder() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.auction.Status != domain.AuctionStatusScheduled {
		return nil, domain.NewAuctionError(domain.ErrInvalidState, "order can only be reset before start")
	}
	if err := e.generateOrder(); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	e.auction.UpdatedAt = now
	return []domain.Event{e.event(domain.EventOrderReset, e.auction.ID, "", 0, now)}, nil
}

// Start opens the auction and hands the first turn to the schedule head.
func (e *Engine) Start() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.auction.Status != domain.AuctionStatusScheduled {
		return nil, domain.NewAuctionError(domain.ErrInvalidState,
			fmt.Sprintf("cannot start an auction that is %s", e.auction.Status))
	}

	now := e.clock.Now()
	e.auction.Status = domain.AuctionStatusActive
	e.auction.StartTime = timePtr(now)
	e.auction.UpdatedAt = now
	e.auction.NominationCursor = -1

	events := []domain.Event{e.event(domain.EventAuctionStarted, e.auction.ID, "", 0, now)}
	events = append(events, e.advanceNominator(now)...)
	// The started event carries the opening nominator.
	events[0].Snapshot = e.snapshot()
	return events, nil
}

// Nominate offers an available item for bidding on the nominator's turn.
// The starting bid becomes the first winning bid.
func (e *Engine) Nominate(itemID, nominatorID string, startingBid int64) ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nominate(itemID, nominatorID, startingBid)
}

func (e *Engine) nominate(itemID, nominatorID string, startingBid int64) ([]domain.Event, error) {
	a := &e.auction
	if a.Status != domain.AuctionStatusActive {
		return nil, domain.NewAuctionError(domain.ErrAuctionNotActive, string(a.Status))
	}
	if a.CurrentItemID != "" {
		return nil, domain.NewAuctionError(domain.ErrInvalidState,
			fmt.Sprintf("item %s is still up for bidding", a.CurrentItemID))
	}
	if !e.budgets.IsMember(nominatorID) {
		return nil, domain.NewAuctionError(domain.ErrNotAParticipant, nominatorID)
	}
	if nominatorID != a.CurrentNominatorID {
		return nil, domain.NewAuctionError(domain.ErrTurnViolation,
			fmt.Sprintf("current nominator is %s", a.CurrentNominatorID))
	}
	idx, ok := e.itemIndex[itemID]
	if !ok || e.items[idx].Status != domain.ItemStatusAvailable {
		return nil, domain.NewAuctionError(domain.ErrItemUnavailable, itemID)
	}
	if startingBid < a.Settings.MinimumBid {
		return nil, domain.NewAuctionError(domain.ErrBidTooLow,
			fmt.Sprintf("minimum bid is %d", a.Settings.MinimumBid))
	}
	if err := e.checkCapacity(nominatorID, startingBid); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	slot := &e.items[idx]
	slot.Status = domain.ItemStatusNominated
	slot.NominatedBy = nominatorID
	slot.NominatedAt = timePtr(now)

	e.bids.Append(domain.Bid{
		ID:        e.newID(),
		AuctionID: a.ID,
		ItemID:    itemID,
		BidderID:  nominatorID,
		Amount:    startingBid,
		PlacedAt:  now,
	})

	a.CurrentItemID = itemID
	a.CurrentBid = startingBid
	a.CurrentHighBidderID = nominatorID
	a.BidDeadline = timePtr(now.Add(a.Settings.BidTimer()))
	a.NominationOpenedAt = nil
	a.UpdatedAt = now
	if a.NominationCursor >= 0 && a.NominationCursor < len(e.schedule) {
		e.schedule[a.NominationCursor].HasNominated = true
	}
	e.budgets.Touch(nominatorID, now)

	return []domain.Event{e.event(domain.EventTeamNominated, itemID, nominatorID, startingBid, now)}, nil
}

// PlaceBid raises the price of the item up for bidding. Every accepted
// bid restarts the bid timer.
func (e *Engine) PlaceBid(itemID, bidderID string, amount int64) ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.auction
	if a.Status != domain.AuctionStatusActive {
		return nil, domain.NewAuctionError(domain.ErrAuctionNotActive, string(a.Status))
	}
	if a.CurrentItemID == "" {
		return nil, domain.NewAuctionError(domain.ErrNoActiveItem, "")
	}
	if itemID != a.CurrentItemID {
		return nil, domain.NewAuctionError(domain.ErrWrongItem,
			fmt.Sprintf("bidding is open on %s", a.CurrentItemID))
	}
	if !e.budgets.IsMember(bidderID) {
		return nil, domain.NewAuctionError(domain.ErrNotAParticipant, bidderID)
	}
	if minimum := a.CurrentBid + a.Settings.BidIncrement; amount <= a.CurrentBid || amount < minimum {
		return nil, domain.NewAuctionError(domain.ErrBidTooLow,
			fmt.Sprintf("bid must be at least %d", minimum))
	}
	if err := e.checkCapacity(bidderID, amount); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	e.bids.Append(domain.Bid{
		ID:        e.newID(),
		AuctionID: a.ID,
		ItemID:    itemID,
		BidderID:  bidderID,
		Amount:    amount,
		PlacedAt:  now,
	})
	a.CurrentBid = amount
	a.CurrentHighBidderID = bidderID
	a.BidDeadline = timePtr(now.Add(a.Settings.BidTimer()))
	a.UpdatedAt = now
	e.budgets.Touch(bidderID, now)

	return []domain.Event{e.event(domain.EventBidPlaced, itemID, bidderID, amount, now)}, nil
}

// checkCapacity gates an offer on the roster cap and the budget ceiling.
func (e *Engine) checkCapacity(participantID string, amount int64) error {
	if limit := e.auction.Settings.MaxItemsPerParticipant; limit > 0 && e.budgets.OwnedCount(participantID) >= limit {
		return domain.NewAuctionError(domain.ErrRosterFull,
			fmt.Sprintf("%s already owns %d items", participantID, limit))
	}
	if !e.budgets.CanAfford(participantID, amount) {
		return domain.NewAuctionError(domain.ErrInsufficientBudget,
			fmt.Sprintf("%s has %d remaining", participantID, e.budgets.Remaining(participantID)))
	}
	return nil
}

// CompleteCurrentItem sells the item up for bidding to the high bidder and
// passes the turn. Calling it again while idle returns ErrNoActiveItem.
func (e *Engine) CompleteCurrentItem() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.completeCurrentItem()
}

// CompleteIfDue sells the current item only when its deadline has passed.
// It returns no events and no error when there is nothing to do, which
// lets a poller race with late bids safely.
func (e *Engine) CompleteIfDue() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := e.auction
	if a.Status != domain.AuctionStatusActive || a.CurrentItemID == "" || a.BidDeadline == nil {
		return nil, nil
	}
	if e.clock.Now().Before(*a.BidDeadline) {
		return nil, nil
	}
	return e.completeCurrentItem()
}

func (e *Engine) completeCurrentItem() ([]domain.Event, error) {
	a := &e.auction
	if a.CurrentItemID == "" || a.CurrentHighBidderID == "" {
		return nil, domain.NewAuctionError(domain.ErrNoActiveItem, "")
	}
	if a.Status != domain.AuctionStatusActive {
		return nil, domain.NewAuctionError(domain.ErrAuctionNotActive, string(a.Status))
	}

	now := e.clock.Now()
	itemID, winner, price := a.CurrentItemID, a.CurrentHighBidderID, a.CurrentBid

	slot := &e.items[e.itemIndex[itemID]]
	slot.Status = domain.ItemStatusSold
	slot.SoldTo = winner
	slot.SoldAt = timePtr(now)
	slot.FinalPrice = price
	e.budgets.Commit(winner, itemID, price, now)

	a.CurrentItemID = ""
	a.CurrentHighBidderID = ""
	a.CurrentBid = 0
	a.BidDeadline = nil
	a.UpdatedAt = now

	events := []domain.Event{e.event(domain.EventTeamSold, itemID, winner, price, now)}
	return append(events, e.advanceNominator(now)...), nil
}

// advanceNominator moves the cursor to the next schedule entry whose
// participant can still nominate, wrapping to index 0 past the end. The
// auction completes when nothing is left to sell or nobody can nominate.
func (e *Engine) advanceNominator(now time.Time) []domain.Event {
	a := &e.auction
	if e.availableCount() == 0 || len(e.schedule) == 0 {
		return e.finish(now)
	}

	for step := 1; step <= len(e.schedule); step++ {
		idx := (a.NominationCursor + step) % len(e.schedule)
		entry := e.schedule[idx]
		if !e.canNominate(entry.ParticipantID) {
			continue
		}
		a.NominationCursor = idx
		a.CurrentRound = entry.Round
		a.CurrentNominatorID = entry.ParticipantID
		a.NominationOpenedAt = timePtr(now)
		return nil
	}
	return e.finish(now)
}

func (e *Engine) canNominate(participantID string) bool {
	if !e.budgets.IsMember(participantID) {
		return false
	}
	if e.budgets.Remaining(participantID) < e.auction.Settings.MinimumBid {
		return false
	}
	limit := e.auction.Settings.MaxItemsPerParticipant
	return limit == 0 || e.budgets.OwnedCount(participantID) < limit
}

func (e *Engine) finish(now time.Time) []domain.Event {
	a := &e.auction
	a.Status = domain.AuctionStatusCompleted
	a.EndTime = timePtr(now)
	a.CurrentNominatorID = ""
	a.NominationOpenedAt = nil
	a.UpdatedAt = now
	return []domain.Event{e.event(domain.EventAuctionCompleted, a.ID, "", 0, now)}
}

func (e *Engine) availableCount() int {
	n := 0
	for _, it := range e.items {
		if it.Status == domain.ItemStatusAvailable {
			n++
		}
	}
	return n
}

// AutoNominate nominates the first available catalog item at the minimum
// bid on behalf of the current nominator.
func (e *Engine) AutoNominate() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoNominate()
}

// AutoNominateIfDue runs AutoNominate once the nomination window has
// elapsed. It is a no-op when no window is configured or open.
func (e *Engine) AutoNominateIfDue() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	deadline := e.nominationDeadline()
	if deadline == nil || e.clock.Now().Before(*deadline) {
		return nil, nil
	}
	return e.autoNominate()
}

func (e *Engine) autoNominate() ([]domain.Event, error) {
	if e.auction.Status != domain.AuctionStatusActive {
		return nil, domain.NewAuctionError(domain.ErrAuctionNotActive, string(e.auction.Status))
	}
	for _, it := range e.items {
		if it.Status == domain.ItemStatusAvailable {
			return e.nominate(it.ItemID, e.auction.CurrentNominatorID, e.auction.Settings.MinimumBid)
		}
	}
	return nil, domain.NewAuctionError(domain.ErrItemUnavailable, "no available items")
}

// Pause suspends an active auction. It is a no-op in any other state.
func (e *Engine) Pause(reason string) ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.auction
	if a.Status != domain.AuctionStatusActive {
		return nil, nil
	}
	now := e.clock.Now()
	a.Status = domain.AuctionStatusPaused
	a.PauseReason = reason
	a.PausedAt = timePtr(now)
	a.UpdatedAt = now
	return []domain.Event{e.event(domain.EventAuctionPaused, a.ID, "", 0, now)}, nil
}

// Resume reopens a paused auction. Pending deadlines move forward by the
// time spent paused.
func (e *Engine) Resume() ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.auction
	if a.Status != domain.AuctionStatusPaused {
		return nil, domain.NewAuctionError(domain.ErrInvalidState,
			fmt.Sprintf("cannot resume an auction that is %s", a.Status))
	}
	now := e.clock.Now()
	var paused time.Duration
	if a.PausedAt != nil {
		paused = now.Sub(*a.PausedAt)
	}
	if a.BidDeadline != nil {
		a.BidDeadline = timePtr(a.BidDeadline.Add(paused))
	}
	if a.NominationOpenedAt != nil {
		a.NominationOpenedAt = timePtr(a.NominationOpenedAt.Add(paused))
	}
	a.Status = domain.AuctionStatusActive
	a.ResumedAt = timePtr(now)
	a.PauseReason = ""
	a.UpdatedAt = now
	return []domain.Event{e.event(domain.EventAuctionResumed, a.ID, "", 0, now)}, nil
}

// ForceComplete closes the auction regardless of unsold items. The close
// is flagged irregular. An item up for bidding goes back to available.
func (e *Engine) ForceComplete(reason string) ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.auction
	if a.Status.Terminal() {
		return nil, domain.NewAuctionError(domain.ErrInvalidState,
			fmt.Sprintf("auction already %s", a.Status))
	}
	now := e.clock.Now()
	e.withdrawCurrentItem()
	a.Irregular = true
	a.CloseReason = reason
	return e.finish(now), nil
}

// Cancel terminates the auction administratively.
func (e *Engine) Cancel(reason string) ([]domain.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a := &e.auction
	if a.Status.Terminal() {
		return nil, domain.NewAuctionError(domain.ErrInvalidState,
			fmt.Sprintf("auction already %s", a.Status))
	}
	now := e.clock.Now()
	e.withdrawCurrentItem()
	a.Status = domain.AuctionStatusCancelled
	a.CloseReason = reason
	a.EndTime = timePtr(now)
	a.CurrentNominatorID = ""
	a.NominationOpenedAt = nil
	a.UpdatedAt = now
	return []domain.Event{e.event(domain.EventAuctionCancelled, a.ID, "", 0, now)}, nil
}

// withdrawCurrentItem puts a nominated item back on the shelf unsold.
func (e *Engine) withdrawCurrentItem() {
	a := &e.auction
	if a.CurrentItemID == "" {
		return
	}
	e.bids.Withdraw(a.CurrentItemID)
	slot := &e.items[e.itemIndex[a.CurrentItemID]]
	slot.Status = domain.ItemStatusAvailable
	slot.NominatedBy = ""
	slot.NominatedAt = nil
	a.CurrentItemID = ""
	a.CurrentHighBidderID = ""
	a.CurrentBid = 0
	a.BidDeadline = nil
}

func (e *Engine) event(t domain.EventType, entityID, actorID string, amount int64, now time.Time) domain.Event {
	return domain.Event{
		ID:         e.newID(),
		Type:       t,
		AuctionID:  e.auction.ID,
		EntityID:   entityID,
		ActorID:    actorID,
		Amount:     amount,
		OccurredAt: now,
		Snapshot:   e.snapshot(),
	}
}
