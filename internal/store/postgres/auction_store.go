package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// AuctionStore implements domain.AuctionStore and domain.BidStore using
// PostgreSQL. The aggregate is spread over one row in auctions and child
// rows in the auction_* tables; Save rewrites the mutable children and
// appends bids it has not seen yet, all inside one transaction.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given connection pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionSelectCols = `id, league_id, name, status, settings, start_time, end_time,
	current_item_id, current_nominator_id, current_high_bidder_id, current_bid,
	bid_deadline, current_round, nomination_cursor, nomination_opened_at,
	pause_reason, paused_at, resumed_at, irregular, close_reason,
	created_at, updated_at`

const bidSelectCols = `id, auction_id, item_id, bidder_id, amount, placed_at, is_winning`

// Create inserts a new auction with all of its child rows.
func (s *AuctionStore) Create(ctx context.Context, state domain.AuctionState) error {
	a := state.Auction
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return fmt.Errorf("postgres: marshal settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		INSERT INTO auctions (` + auctionSelectCols + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15,
			$16, $17, $18, $19, $20,
			$21, $22
		)
		ON CONFLICT (id) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		a.ID, a.LeagueID, a.Name, string(a.Status), settings, a.StartTime, a.EndTime,
		a.CurrentItemID, a.CurrentNominatorID, a.CurrentHighBidderID, a.CurrentBid,
		a.BidDeadline, a.CurrentRound, a.NominationCursor, a.NominationOpenedAt,
		a.PauseReason, a.PausedAt, a.ResumedAt, a.Irregular, a.CloseReason,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: insert auction %s: %w", a.ID, domain.ErrAlreadyExists)
	}

	if err := writeChildren(ctx, tx, state); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit auction %s: %w", a.ID, err)
	}
	return nil
}

// Save writes the current state of an existing auction.
func (s *AuctionStore) Save(ctx context.Context, state domain.AuctionState) error {
	a := state.Auction
	settings, err := json.Marshal(a.Settings)
	if err != nil {
		return fmt.Errorf("postgres: marshal settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const query = `
		UPDATE auctions SET
			league_id              = $2,
			name                   = $3,
			status                 = $4,
			settings               = $5,
			start_time             = $6,
			end_time               = $7,
			current_item_id        = $8,
			current_nominator_id   = $9,
			current_high_bidder_id = $10,
			current_bid            = $11,
			bid_deadline           = $12,
			current_round          = $13,
			nomination_cursor      = $14,
			nomination_opened_at   = $15,
			pause_reason           = $16,
			paused_at              = $17,
			resumed_at             = $18,
			irregular              = $19,
			close_reason           = $20,
			updated_at             = $21
		WHERE id = $1`

	tag, err := tx.Exec(ctx, query,
		a.ID, a.LeagueID, a.Name, string(a.Status), settings, a.StartTime, a.EndTime,
		a.CurrentItemID, a.CurrentNominatorID, a.CurrentHighBidderID, a.CurrentBid,
		a.BidDeadline, a.CurrentRound, a.NominationCursor, a.NominationOpenedAt,
		a.PauseReason, a.PausedAt, a.ResumedAt, a.Irregular, a.CloseReason,
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := writeChildren(ctx, tx, state); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit auction %s: %w", a.ID, err)
	}
	return nil
}

// writeChildren upserts slots, participants and both orders, then appends
// new bids. Statements run in an order that keeps the partial unique
// indexes satisfied at every step: the outgoing nominated slot and the
// outgoing winning bid are cleared before their replacements are written.
func writeChildren(ctx context.Context, tx pgx.Tx, state domain.AuctionState) error {
	auctionID := state.Auction.ID

	var storedSeq int
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), -1) FROM auction_bids WHERE auction_id = $1`,
		auctionID,
	).Scan(&storedSeq)
	if err != nil {
		return fmt.Errorf("postgres: read bid watermark %s: %w", auctionID, err)
	}

	batch := &pgx.Batch{}

	const itemQuery = `
		INSERT INTO auction_items (
			auction_id, item_id, name, position, status,
			nominated_by, nominated_at, sold_to, sold_at, final_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (auction_id, item_id) DO UPDATE SET
			name         = EXCLUDED.name,
			position     = EXCLUDED.position,
			status       = EXCLUDED.status,
			nominated_by = EXCLUDED.nominated_by,
			nominated_at = EXCLUDED.nominated_at,
			sold_to      = EXCLUDED.sold_to,
			sold_at      = EXCLUDED.sold_at,
			final_price  = EXCLUDED.final_price`

	queueItem := func(it domain.ItemSlot) {
		batch.Queue(itemQuery,
			auctionID, it.ItemID, it.Name, it.Position, string(it.Status),
			it.NominatedBy, it.NominatedAt, it.SoldTo, it.SoldAt, it.FinalPrice,
		)
	}
	for _, it := range state.Items {
		if it.Status != domain.ItemStatusNominated {
			queueItem(it)
		}
	}
	for _, it := range state.Items {
		if it.Status == domain.ItemStatusNominated {
			queueItem(it)
		}
	}

	const participantQuery = `
		INSERT INTO auction_participants (
			auction_id, participant_id, ordinal, budget, spent,
			owned_item_ids, is_active, last_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (auction_id, participant_id) DO UPDATE SET
			ordinal        = EXCLUDED.ordinal,
			budget         = EXCLUDED.budget,
			spent          = EXCLUDED.spent,
			owned_item_ids = EXCLUDED.owned_item_ids,
			is_active      = EXCLUDED.is_active,
			last_activity  = EXCLUDED.last_activity`

	for i, p := range state.Participants {
		owned := p.OwnedItemIDs
		if owned == nil {
			owned = []string{}
		}
		batch.Queue(participantQuery,
			auctionID, p.ID, i, p.Budget, p.Spent,
			owned, p.IsActive, p.LastActivity,
		)
	}

	const draftQuery = `
		INSERT INTO auction_draft_order (auction_id, position, participant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (auction_id, position) DO UPDATE SET
			participant_id = EXCLUDED.participant_id`

	for _, d := range state.DraftOrder {
		batch.Queue(draftQuery, auctionID, d.Position, d.ParticipantID)
	}

	const nominationQuery = `
		INSERT INTO auction_nomination_order (
			auction_id, seq, round, position, participant_id, has_nominated
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (auction_id, seq) DO UPDATE SET
			round          = EXCLUDED.round,
			position       = EXCLUDED.position,
			participant_id = EXCLUDED.participant_id,
			has_nominated  = EXCLUDED.has_nominated`

	for i, n := range state.NominationOrder {
		batch.Queue(nominationQuery,
			auctionID, i, n.Round, n.Position, n.ParticipantID, n.HasNominated,
		)
	}

	// Bids already stored only ever lose their winning flag.
	winning := []int32{}
	for i, b := range state.Bids {
		if i > storedSeq {
			break
		}
		if b.IsWinning {
			winning = append(winning, int32(i))
		}
	}
	batch.Queue(`
		UPDATE auction_bids SET is_winning = FALSE
		WHERE auction_id = $1 AND is_winning AND seq <= $2 AND NOT (seq = ANY($3))`,
		auctionID, storedSeq, winning,
	)

	const bidQuery = `
		INSERT INTO auction_bids (
			id, auction_id, seq, item_id, bidder_id, amount, placed_at, is_winning
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	for i := storedSeq + 1; i < len(state.Bids); i++ {
		b := state.Bids[i]
		batch.Queue(bidQuery,
			b.ID, auctionID, i, b.ItemID, b.BidderID, b.Amount, b.PlacedAt, b.IsWinning,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: write auction %s batch item %d: %w", auctionID, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close auction %s batch: %w", auctionID, err)
	}
	return nil
}

// Get loads the full aggregate for an auction.
func (s *AuctionStore) Get(ctx context.Context, id string) (domain.AuctionState, error) {
	var state domain.AuctionState

	row := s.pool.QueryRow(ctx, `SELECT `+auctionSelectCols+` FROM auctions WHERE id = $1`, id)
	a, err := scanAuction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AuctionState{}, domain.ErrNotFound
		}
		return domain.AuctionState{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	state.Auction = a

	if state.Items, err = s.items(ctx, id); err != nil {
		return domain.AuctionState{}, err
	}
	if state.Participants, err = s.participants(ctx, id); err != nil {
		return domain.AuctionState{}, err
	}
	if state.DraftOrder, err = s.draftOrder(ctx, id); err != nil {
		return domain.AuctionState{}, err
	}
	if state.NominationOrder, err = s.nominationOrder(ctx, id); err != nil {
		return domain.AuctionState{}, err
	}
	if state.Bids, err = s.ListByItem(ctx, id, ""); err != nil {
		return domain.AuctionState{}, err
	}
	return state, nil
}

// ListByStatus returns auction summaries in any of the given statuses,
// most recently updated first. An empty status list matches every auction.
func (s *AuctionStore) ListByStatus(ctx context.Context, statuses []domain.AuctionStatus, opts domain.ListOpts) ([]domain.AuctionSummary, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, league_id, name, status, created_at, updated_at FROM auctions WHERE 1=1`)
	args := []any{}
	argIdx := 1

	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		fmt.Fprintf(&b, " AND status = ANY($%d)", argIdx)
		args = append(args, names)
		argIdx++
	}
	if opts.Since != nil {
		fmt.Fprintf(&b, " AND updated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		fmt.Fprintf(&b, " AND updated_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	b.WriteString(" ORDER BY updated_at DESC, id")

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var out []domain.AuctionSummary
	for rows.Next() {
		var sum domain.AuctionSummary
		var status string
		if err := rows.Scan(&sum.ID, &sum.LeagueID, &sum.Name, &status, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan auction summary: %w", err)
		}
		sum.Status = domain.AuctionStatus(status)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list auctions rows: %w", err)
	}
	return out, nil
}

// ListByAuction returns a page of bids in admission order.
func (s *AuctionStore) ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + bidSelectCols + ` FROM auction_bids WHERE auction_id = $1`)
	args := []any{auctionID}
	argIdx := 2

	if opts.Since != nil {
		fmt.Fprintf(&b, " AND placed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		fmt.Fprintf(&b, " AND placed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	b.WriteString(" ORDER BY seq")

	if opts.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&b, " OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryBids(ctx, b.String(), args...)
}

// ListByItem returns every bid on one item in admission order. An empty
// itemID returns the whole history.
func (s *AuctionStore) ListByItem(ctx context.Context, auctionID, itemID string) ([]domain.Bid, error) {
	if itemID == "" {
		return s.queryBids(ctx,
			`SELECT `+bidSelectCols+` FROM auction_bids WHERE auction_id = $1 ORDER BY seq`,
			auctionID,
		)
	}
	return s.queryBids(ctx,
		`SELECT `+bidSelectCols+` FROM auction_bids WHERE auction_id = $1 AND item_id = $2 ORDER BY seq`,
		auctionID, itemID,
	)
}

func (s *AuctionStore) queryBids(ctx context.Context, query string, args ...any) ([]domain.Bid, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bids: %w", err)
	}
	defer rows.Close()

	var out []domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.ItemID, &b.BidderID, &b.Amount, &b.PlacedAt, &b.IsWinning); err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bids rows: %w", err)
	}
	return out, nil
}

func (s *AuctionStore) items(ctx context.Context, auctionID string) ([]domain.ItemSlot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_id, name, position, status, nominated_by, nominated_at,
			sold_to, sold_at, final_price
		FROM auction_items WHERE auction_id = $1 ORDER BY position`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list items %s: %w", auctionID, err)
	}
	defer rows.Close()

	var out []domain.ItemSlot
	for rows.Next() {
		var it domain.ItemSlot
		var status string
		if err := rows.Scan(&it.ItemID, &it.Name, &it.Position, &status, &it.NominatedBy,
			&it.NominatedAt, &it.SoldTo, &it.SoldAt, &it.FinalPrice); err != nil {
			return nil, fmt.Errorf("postgres: scan item: %w", err)
		}
		it.Status = domain.ItemStatus(status)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list items rows: %w", err)
	}
	return out, nil
}

func (s *AuctionStore) participants(ctx context.Context, auctionID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT participant_id, budget, spent, owned_item_ids, is_active, last_activity
		FROM auction_participants WHERE auction_id = $1 ORDER BY ordinal`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list participants %s: %w", auctionID, err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.Budget, &p.Spent, &p.OwnedItemIDs, &p.IsActive, &p.LastActivity); err != nil {
			return nil, fmt.Errorf("postgres: scan participant: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list participants rows: %w", err)
	}
	return out, nil
}

func (s *AuctionStore) draftOrder(ctx context.Context, auctionID string) ([]domain.DraftOrderEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT participant_id, position
		FROM auction_draft_order WHERE auction_id = $1 ORDER BY position`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list draft order %s: %w", auctionID, err)
	}
	defer rows.Close()

	var out []domain.DraftOrderEntry
	for rows.Next() {
		var d domain.DraftOrderEntry
		if err := rows.Scan(&d.ParticipantID, &d.Position); err != nil {
			return nil, fmt.Errorf("postgres: scan draft order: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list draft order rows: %w", err)
	}
	return out, nil
}

func (s *AuctionStore) nominationOrder(ctx context.Context, auctionID string) ([]domain.NominationOrderEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT round, position, participant_id, has_nominated
		FROM auction_nomination_order WHERE auction_id = $1 ORDER BY seq`,
		auctionID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list nomination order %s: %w", auctionID, err)
	}
	defer rows.Close()

	var out []domain.NominationOrderEntry
	for rows.Next() {
		var n domain.NominationOrderEntry
		if err := rows.Scan(&n.Round, &n.Position, &n.ParticipantID, &n.HasNominated); err != nil {
			return nil, fmt.Errorf("postgres: scan nomination order: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list nomination order rows: %w", err)
	}
	return out, nil
}

// scanAuction scans a single auctions row into a domain.Auction.
func scanAuction(row pgx.Row) (domain.Auction, error) {
	var a domain.Auction
	var status string
	var settings []byte
	err := row.Scan(
		&a.ID, &a.LeagueID, &a.Name, &status, &settings, &a.StartTime, &a.EndTime,
		&a.CurrentItemID, &a.CurrentNominatorID, &a.CurrentHighBidderID, &a.CurrentBid,
		&a.BidDeadline, &a.CurrentRound, &a.NominationCursor, &a.NominationOpenedAt,
		&a.PauseReason, &a.PausedAt, &a.ResumedAt, &a.Irregular, &a.CloseReason,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return domain.Auction{}, err
	}
	a.Status = domain.AuctionStatus(status)
	if err := json.Unmarshal(settings, &a.Settings); err != nil {
		return domain.Auction{}, fmt.Errorf("unmarshal settings: %w", err)
	}
	return a, nil
}
