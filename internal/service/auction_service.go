package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/leagueauction/internal/auction"
	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ResultsPublisher hands final rosters to downstream league systems.
type ResultsPublisher interface {
	PublishResults(ctx context.Context, res domain.AuctionResults) error
}

// BidLimit caps how often one participant may bid on one auction.
type BidLimit struct {
	Limit  int
	Window time.Duration
}

const (
	defaultLockTTL   = 5 * time.Second
	lockRetries      = 20
	lockRetryBackoff = 25 * time.Millisecond
)

// liveAuction is one registered engine. mu serializes a mutation together
// with its persistence so saves land in commit order; readers load the
// engine pointer without taking mu.
type liveAuction struct {
	mu     sync.Mutex
	engine atomic.Pointer[auction.Engine]
}

// AuctionService owns the live auction engines. Every mutation runs under
// the auction's writer lock, is persisted, then fanned out to the bus, the
// snapshot cache and the audit log.
type AuctionService struct {
	store    domain.AuctionStore
	bids     domain.BidStore
	audit    domain.AuditStore
	bus      domain.SignalBus
	cache    domain.SnapshotCache
	locks    domain.LockManager
	limiter  domain.RateLimiter
	archiver domain.Archiver
	notifier Notifier
	results  ResultsPublisher
	clock    auction.Clock
	lockTTL  time.Duration
	bidLimit BidLimit
	logger   *slog.Logger

	mu   sync.Mutex
	live map[string]*liveAuction
}

// NewAuctionService creates an AuctionService over a store and audit log.
func NewAuctionService(store domain.AuctionStore, audit domain.AuditStore, logger *slog.Logger) *AuctionService {
	return &AuctionService{
		store:   store,
		audit:   audit,
		clock:   auction.SystemClock{},
		lockTTL: defaultLockTTL,
		logger:  logger.With(slog.String("component", "auction_service")),
		live:    make(map[string]*liveAuction),
	}
}

// WithSignalBus publishes every event on the auction's channel and the
// shared event stream.
func (s *AuctionService) WithSignalBus(bus domain.SignalBus) *AuctionService {
	s.bus = bus
	return s
}

// WithBidStore serves paged bid history straight from the store.
func (s *AuctionService) WithBidStore(bids domain.BidStore) *AuctionService {
	s.bids = bids
	return s
}

// WithSnapshotCache keeps the latest snapshot of each auction in cache.
func (s *AuctionService) WithSnapshotCache(cache domain.SnapshotCache) *AuctionService {
	s.cache = cache
	return s
}

// WithLockManager enables cross-instance writer locking. With a lock
// manager every mutation and read reloads the aggregate from the store, so
// several processes can serve the same auction.
func (s *AuctionService) WithLockManager(locks domain.LockManager, ttl time.Duration) *AuctionService {
	s.locks = locks
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// WithRateLimiter throttles bids per participant.
func (s *AuctionService) WithRateLimiter(limiter domain.RateLimiter, limit BidLimit) *AuctionService {
	s.limiter = limiter
	s.bidLimit = limit
	return s
}

// WithArchiver copies completed auctions to cold storage.
func (s *AuctionService) WithArchiver(archiver domain.Archiver) *AuctionService {
	s.archiver = archiver
	return s
}

// WithNotifier sends operator alerts on completion and irregular closes.
func (s *AuctionService) WithNotifier(n Notifier) *AuctionService {
	s.notifier = n
	return s
}

// WithResultsPublisher publishes final rosters when an auction completes.
func (s *AuctionService) WithResultsPublisher(p ResultsPublisher) *AuctionService {
	s.results = p
	return s
}

// WithClock overrides the engine clock.
func (s *AuctionService) WithClock(c auction.Clock) *AuctionService {
	s.clock = c
	return s
}

// Create builds a new scheduled auction and persists it.
func (s *AuctionService) Create(ctx context.Context, setup auction.Setup) (domain.Snapshot, error) {
	if setup.AuctionID == "" {
		setup.AuctionID = uuid.NewString()
	}
	eng, err := auction.NewEngine(setup, auction.WithClock(s.clock))
	if err != nil {
		return domain.Snapshot{}, err
	}
	state := eng.State()
	if err := s.store.Create(ctx, state); err != nil {
		return domain.Snapshot{}, fmt.Errorf("auction_service: create: %w", err)
	}

	ent := s.entry(setup.AuctionID)
	ent.engine.Store(eng)

	snap := eng.Snapshot()
	s.cacheSnapshot(ctx, snap)
	s.auditLog(ctx, "auction.created", map[string]any{
		"auction_id":   setup.AuctionID,
		"league_id":    setup.LeagueID,
		"participants": len(setup.Participants),
		"items":        len(setup.Items),
	})
	s.logger.InfoContext(ctx, "auction_service: auction created",
		slog.String("auction_id", setup.AuctionID),
		slog.Int("participants", len(setup.Participants)),
		slog.Int("items", len(setup.Items)),
	)
	return snap, nil
}

// Start opens a scheduled auction.
func (s *AuctionService) Start(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "start", func(e *auction.Engine) ([]domain.Event, error) {
		return e.Start()
	})
}

// Nominate puts an item up for bidding on the nominator's turn.
func (s *AuctionService) Nominate(ctx context.Context, auctionID, itemID, nominatorID string, startingBid int64) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "nominate", func(e *auction.Engine) ([]domain.Event, error) {
		return e.Nominate(itemID, nominatorID, startingBid)
	})
}

// PlaceBid raises the price of the item up for bidding.
func (s *AuctionService) PlaceBid(ctx context.Context, auctionID, itemID, bidderID string, amount int64) (domain.Snapshot, error) {
	if s.limiter != nil && s.bidLimit.Limit > 0 {
		allowed, err := s.limiter.Allow(ctx, "bids:"+auctionID+":"+bidderID, s.bidLimit.Limit, s.bidLimit.Window)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("auction_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Snapshot{}, domain.ErrRateLimited
		}
	}
	return s.mutate(ctx, auctionID, "place_bid", func(e *auction.Engine) ([]domain.Event, error) {
		return e.PlaceBid(itemID, bidderID, amount)
	})
}

// CompleteCurrentItem sells the item up for bidding to the high bidder.
func (s *AuctionService) CompleteCurrentItem(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "complete_item", func(e *auction.Engine) ([]domain.Event, error) {
		return e.CompleteCurrentItem()
	})
}

// AutoNominate nominates on behalf of the current nominator.
func (s *AuctionService) AutoNominate(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "auto_nominate", func(e *auction.Engine) ([]domain.Event, error) {
		return e.AutoNominate()
	})
}

// Pause suspends an active auction.
func (s *AuctionService) Pause(ctx context.Context, auctionID, reason string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "pause", func(e *auction.Engine) ([]domain.Event, error) {
		return e.Pause(reason)
	})
}

// Resume reopens a paused auction.
func (s *AuctionService) Resume(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "resume", func(e *auction.Engine) ([]domain.Event, error) {
		return e.Resume()
	})
}

// ForceComplete closes the auction irregularly.
func (s *AuctionService) ForceComplete(ctx context.Context, auctionID, reason string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "force_complete", func(e *auction.Engine) ([]domain.Event, error) {
		return e.ForceComplete(reason)
	})
}

// Cancel terminates the auction administratively.
func (s *AuctionService) Cancel(ctx context.Context, auctionID, reason string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "cancel", func(e *auction.Engine) ([]domain.Event, error) {
		return e.Cancel(reason)
	})
}

// ResetOrder reshuffles the draft order of a scheduled auction.
func (s *AuctionService) ResetOrder(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	return s.mutate(ctx, auctionID, "reset_order", func(e *auction.Engine) ([]domain.Event, error) {
		return e.ResetOrder()
	})
}

// CompleteIfDue sells the current item when its bid deadline has passed.
// It reports whether anything happened.
func (s *AuctionService) CompleteIfDue(ctx context.Context, auctionID string) (bool, error) {
	var fired bool
	_, err := s.mutate(ctx, auctionID, "complete_due", func(e *auction.Engine) ([]domain.Event, error) {
		events, err := e.CompleteIfDue()
		fired = len(events) > 0
		return events, err
	})
	return fired, err
}

// AutoNominateIfDue nominates for an idle nominator once the nomination
// window has lapsed. It reports whether anything happened.
func (s *AuctionService) AutoNominateIfDue(ctx context.Context, auctionID string) (bool, error) {
	var fired bool
	_, err := s.mutate(ctx, auctionID, "auto_nominate_due", func(e *auction.Engine) ([]domain.Event, error) {
		events, err := e.AutoNominateIfDue()
		fired = len(events) > 0
		return events, err
	})
	return fired, err
}

// mutate runs fn against the auction under its writer lock and commits the
// result. fn works on a private copy of the engine; the copy replaces the
// live engine only after the save succeeds, so readers never see state that
// was not persisted. Engine rule errors are returned unwrapped so callers
// can match them.
func (s *AuctionService) mutate(
	ctx context.Context,
	auctionID, op string,
	fn func(*auction.Engine) ([]domain.Event, error),
) (domain.Snapshot, error) {
	if s.locks != nil {
		unlock, err := s.acquire(ctx, auctionID)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("auction_service: %s: %w", op, err)
		}
		defer unlock()
	}

	ent := s.entry(auctionID)
	ent.mu.Lock()
	defer ent.mu.Unlock()

	var (
		eng *auction.Engine
		err error
	)
	cur := ent.engine.Load()
	if cur == nil || s.locks != nil {
		eng, err = s.load(ctx, auctionID)
	} else {
		eng, err = s.fork(auctionID, cur)
	}
	if err != nil {
		if cur == nil {
			s.drop(auctionID, ent)
		}
		return domain.Snapshot{}, err
	}

	events, err := fn(eng)
	if err != nil {
		return domain.Snapshot{}, err
	}
	if len(events) == 0 {
		ent.engine.Store(eng)
		return eng.Snapshot(), nil
	}

	state := eng.State()
	if err := s.store.Save(ctx, state); err != nil {
		s.logger.ErrorContext(ctx, "auction_service: save failed, mutation discarded",
			slog.String("auction_id", auctionID),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		if cur == nil {
			s.drop(auctionID, ent)
		}
		return domain.Snapshot{}, fmt.Errorf("auction_service: %s: save: %w", op, err)
	}
	ent.engine.Store(eng)

	s.publish(ctx, state, events)
	return eng.Snapshot(), nil
}

// fork copies the live engine for a mutation.
func (s *AuctionService) fork(auctionID string, eng *auction.Engine) (*auction.Engine, error) {
	cp, err := auction.Restore(eng.State(), auction.WithClock(s.clock))
	if err != nil {
		return nil, fmt.Errorf("auction_service: fork %s: %w", auctionID, err)
	}
	return cp, nil
}

// acquire takes the distributed writer lock, retrying briefly while another
// instance holds it.
func (s *AuctionService) acquire(ctx context.Context, auctionID string) (func(), error) {
	key := "auction:" + auctionID
	for attempt := 0; ; attempt++ {
		unlock, err := s.locks.Acquire(ctx, key, s.lockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || attempt >= lockRetries {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, domain.ErrContextDone
		case <-time.After(lockRetryBackoff):
		}
	}
}

func (s *AuctionService) entry(auctionID string) *liveAuction {
	s.mu.Lock()
	defer s.mu.Unlock()
	ent, ok := s.live[auctionID]
	if !ok {
		ent = &liveAuction{}
		s.live[auctionID] = ent
	}
	return ent
}

func (s *AuctionService) drop(auctionID string, ent *liveAuction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[auctionID] == ent && ent.engine.Load() == nil {
		delete(s.live, auctionID)
	}
}

func (s *AuctionService) load(ctx context.Context, auctionID string) (*auction.Engine, error) {
	state, err := s.store.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("auction_service: load %s: %w", auctionID, err)
	}
	eng, err := auction.Restore(state, auction.WithClock(s.clock))
	if err != nil {
		return nil, fmt.Errorf("auction_service: restore %s: %w", auctionID, err)
	}
	return eng, nil
}

// view returns an engine for reads. It never takes the writer lock; the
// live engine only ever holds saved state.
func (s *AuctionService) view(ctx context.Context, auctionID string) (*auction.Engine, error) {
	if s.locks == nil {
		s.mu.Lock()
		ent, ok := s.live[auctionID]
		s.mu.Unlock()
		if ok {
			if eng := ent.engine.Load(); eng != nil {
				return eng, nil
			}
		}
	}
	eng, err := s.load(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	if s.locks == nil {
		s.entry(auctionID).engine.CompareAndSwap(nil, eng)
	}
	return eng, nil
}

// Load makes sure the auction is registered in memory, rehydrating it from
// the store when needed.
func (s *AuctionService) Load(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return eng.Snapshot(), nil
}

// Snapshot returns the observer view, served from cache when possible.
func (s *AuctionService) Snapshot(ctx context.Context, auctionID string) (domain.Snapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.Get(ctx, auctionID)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "auction_service: snapshot cache read failed",
				slog.String("auction_id", auctionID),
				slog.String("error", err.Error()),
			)
		}
	}
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := eng.Snapshot()
	s.cacheSnapshot(ctx, snap)
	return snap, nil
}

// Budget returns one participant's budget view.
func (s *AuctionService) Budget(ctx context.Context, auctionID, participantID string) (domain.Budget, error) {
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return domain.Budget{}, err
	}
	return eng.Budget(participantID)
}

// Budgets returns every participant's budget view.
func (s *AuctionService) Budgets(ctx context.Context, auctionID string) ([]domain.Budget, error) {
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return eng.Budgets(), nil
}

// Bids returns the bid history, optionally for a single item.
func (s *AuctionService) Bids(ctx context.Context, auctionID, itemID string) ([]domain.Bid, error) {
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return eng.Bids(itemID), nil
}

// BidHistory returns a page of the auction's bid history in admission
// order. Without a bid store the page is cut from the live engine.
func (s *AuctionService) BidHistory(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	if s.bids != nil {
		out, err := s.bids.ListByAuction(ctx, auctionID, opts)
		if err != nil {
			return nil, fmt.Errorf("auction_service: bid history: %w", err)
		}
		return out, nil
	}
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	all := eng.Bids("")
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Offset >= len(all) {
		return []domain.Bid{}, nil
	}
	all = all[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(all) {
		all = all[:opts.Limit]
	}
	return all, nil
}

// Items returns the item slots in catalog order.
func (s *AuctionService) Items(ctx context.Context, auctionID string) ([]domain.ItemSlot, error) {
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return eng.State().Items, nil
}

// Order returns the draft order and the nomination schedule.
func (s *AuctionService) Order(ctx context.Context, auctionID string) ([]domain.DraftOrderEntry, []domain.NominationOrderEntry, error) {
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return nil, nil, err
	}
	state := eng.State()
	return state.DraftOrder, state.NominationOrder, nil
}

// State returns the whole aggregate.
func (s *AuctionService) State(ctx context.Context, auctionID string) (domain.AuctionState, error) {
	eng, err := s.view(ctx, auctionID)
	if err != nil {
		return domain.AuctionState{}, err
	}
	return eng.State(), nil
}

// List returns auctions in the given statuses.
func (s *AuctionService) List(ctx context.Context, statuses []domain.AuctionStatus, opts domain.ListOpts) ([]domain.AuctionSummary, error) {
	out, err := s.store.ListByStatus(ctx, statuses, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list: %w", err)
	}
	return out, nil
}

// ActiveAuctionIDs lists auctions the deadline watcher should poll.
func (s *AuctionService) ActiveAuctionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.store.ListByStatus(ctx, []domain.AuctionStatus{domain.AuctionStatusActive}, domain.ListOpts{Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("auction_service: list active: %w", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// publish fans committed events out. Every step is best effort: the
// mutation is already durable.
func (s *AuctionService) publish(ctx context.Context, state domain.AuctionState, events []domain.Event) {
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			s.logger.WarnContext(ctx, "auction_service: marshal event failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if s.bus != nil {
			if err := s.bus.Publish(ctx, domain.AuctionChannel(ev.AuctionID), payload); err != nil {
				s.logger.WarnContext(ctx, "auction_service: publish event failed",
					slog.String("auction_id", ev.AuctionID),
					slog.String("event", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
			if err := s.bus.StreamAppend(ctx, domain.AuctionEventStream, payload); err != nil {
				s.logger.WarnContext(ctx, "auction_service: stream append failed",
					slog.String("auction_id", ev.AuctionID),
					slog.String("error", err.Error()),
				)
			}
		}
		s.auditLog(ctx, "auction."+string(ev.Type), map[string]any{
			"auction_id": ev.AuctionID,
			"event_id":   ev.ID,
			"entity_id":  ev.EntityID,
			"actor_id":   ev.ActorID,
			"amount":     ev.Amount,
			"status":     string(ev.Snapshot.Status),
		})
		s.logger.InfoContext(ctx, "auction_service: "+string(ev.Type),
			slog.String("auction_id", ev.AuctionID),
			slog.String("entity_id", ev.EntityID),
			slog.String("actor_id", ev.ActorID),
			slog.Int64("amount", ev.Amount),
		)
	}

	s.cacheSnapshot(ctx, events[len(events)-1].Snapshot)

	for _, ev := range events {
		switch ev.Type {
		case domain.EventAuctionCompleted:
			s.onCompleted(ctx, state)
		case domain.EventAuctionPaused:
			s.notify(ctx, "auction_paused", "Auction paused",
				fmt.Sprintf("Auction %s (%s) was paused: %s", state.Auction.Name, state.Auction.ID, state.Auction.PauseReason))
		case domain.EventAuctionCancelled:
			s.notify(ctx, "auction_cancelled", "Auction cancelled",
				fmt.Sprintf("Auction %s (%s) was cancelled: %s", state.Auction.Name, state.Auction.ID, state.Auction.CloseReason))
		}
	}
}

func (s *AuctionService) onCompleted(ctx context.Context, state domain.AuctionState) {
	a := state.Auction
	sold := 0
	for _, it := range state.Items {
		if it.Status == domain.ItemStatusSold {
			sold++
		}
	}
	if a.Irregular {
		s.notify(ctx, "auction_irregular_close", "Auction force-completed",
			fmt.Sprintf("Auction %s (%s) was closed early with %d of %d items sold: %s",
				a.Name, a.ID, sold, len(state.Items), a.CloseReason))
	} else {
		s.notify(ctx, "auction_completed", "Auction completed",
			fmt.Sprintf("Auction %s (%s) finished with %d of %d items sold", a.Name, a.ID, sold, len(state.Items)))
	}

	if s.results != nil {
		if err := s.results.PublishResults(ctx, domain.BuildResults(state, s.clock.Now())); err != nil {
			s.logger.WarnContext(ctx, "auction_service: publish results failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.archiver == nil {
		return
	}
	path, err := s.archiver.ArchiveAuction(ctx, state)
	if err != nil {
		s.logger.WarnContext(ctx, "auction_service: archive failed",
			slog.String("auction_id", a.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.InfoContext(ctx, "auction_service: auction archived",
		slog.String("auction_id", a.ID),
		slog.String("path", path),
	)
}

func (s *AuctionService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "auction_service: notify failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuctionService) cacheSnapshot(ctx context.Context, snap domain.Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, snap); err != nil {
		s.logger.WarnContext(ctx, "auction_service: snapshot cache write failed",
			slog.String("auction_id", snap.AuctionID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuctionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "auction_service: audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
