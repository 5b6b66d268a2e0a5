package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/leagueauction/internal/auction"
	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// AuctionService defines the methods that the auction handler requires from
// the service layer.
type AuctionService interface {
	Create(ctx context.Context, setup auction.Setup) (domain.Snapshot, error)
	Start(ctx context.Context, auctionID string) (domain.Snapshot, error)
	Nominate(ctx context.Context, auctionID, itemID, nominatorID string, startingBid int64) (domain.Snapshot, error)
	PlaceBid(ctx context.Context, auctionID, itemID, bidderID string, amount int64) (domain.Snapshot, error)
	CompleteCurrentItem(ctx context.Context, auctionID string) (domain.Snapshot, error)
	AutoNominate(ctx context.Context, auctionID string) (domain.Snapshot, error)
	Pause(ctx context.Context, auctionID, reason string) (domain.Snapshot, error)
	Resume(ctx context.Context, auctionID string) (domain.Snapshot, error)
	ForceComplete(ctx context.Context, auctionID, reason string) (domain.Snapshot, error)
	Cancel(ctx context.Context, auctionID, reason string) (domain.Snapshot, error)
	ResetOrder(ctx context.Context, auctionID string) (domain.Snapshot, error)

	Snapshot(ctx context.Context, auctionID string) (domain.Snapshot, error)
	Budget(ctx context.Context, auctionID, participantID string) (domain.Budget, error)
	Budgets(ctx context.Context, auctionID string) ([]domain.Budget, error)
	Bids(ctx context.Context, auctionID, itemID string) ([]domain.Bid, error)
	BidHistory(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.Bid, error)
	Items(ctx context.Context, auctionID string) ([]domain.ItemSlot, error)
	Order(ctx context.Context, auctionID string) ([]domain.DraftOrderEntry, []domain.NominationOrderEntry, error)
	State(ctx context.Context, auctionID string) (domain.AuctionState, error)
	List(ctx context.Context, statuses []domain.AuctionStatus, opts domain.ListOpts) ([]domain.AuctionSummary, error)
}

// Defaults fill in whatever a create request leaves out.
type Defaults struct {
	Settings domain.Settings
	Budget   int64
}

// AuctionHandler serves the auction endpoints.
type AuctionHandler struct {
	auctions AuctionService
	defaults Defaults
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler with the given service and logger.
func NewAuctionHandler(auctions AuctionService, defaults Defaults, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		defaults: defaults,
		logger:   logHandler(logger, "auction"),
	}
}

// createSettings mirrors domain.Settings with optional fields.
type createSettings struct {
	BidTimerSeconds          *int   `json:"bid_timer_seconds"`
	MinimumBid               *int64 `json:"minimum_bid"`
	BidIncrement             *int64 `json:"bid_increment"`
	MaxItemsPerParticipant   *int   `json:"max_items_per_participant"`
	NominationTimeoutSeconds *int   `json:"nomination_timeout_seconds"`
}

type createParticipant struct {
	ID     string `json:"id"`
	Budget *int64 `json:"budget"`
}

type createAuctionRequest struct {
	AuctionID    string              `json:"auction_id"`
	LeagueID     string              `json:"league_id"`
	Name         string              `json:"name"`
	Settings     createSettings      `json:"settings"`
	Participants []createParticipant `json:"participants"`
	Items        []auction.ItemSpec  `json:"items"`
}

// setup resolves the request against the defaults.
func (req createAuctionRequest) setup(d Defaults) auction.Setup {
	s := d.Settings
	if req.Settings.BidTimerSeconds != nil {
		s.BidTimerSeconds = *req.Settings.BidTimerSeconds
	}
	if req.Settings.MinimumBid != nil {
		s.MinimumBid = *req.Settings.MinimumBid
	}
	if req.Settings.BidIncrement != nil {
		s.BidIncrement = *req.Settings.BidIncrement
	}
	if req.Settings.MaxItemsPerParticipant != nil {
		s.MaxItemsPerParticipant = *req.Settings.MaxItemsPerParticipant
	}
	if req.Settings.NominationTimeoutSeconds != nil {
		s.NominationTimeoutSeconds = *req.Settings.NominationTimeoutSeconds
	}

	participants := make([]auction.ParticipantSpec, len(req.Participants))
	for i, p := range req.Participants {
		budget := d.Budget
		if p.Budget != nil {
			budget = *p.Budget
		}
		participants[i] = auction.ParticipantSpec{ID: strings.TrimSpace(p.ID), Budget: budget}
	}

	return auction.Setup{
		AuctionID:    strings.TrimSpace(req.AuctionID),
		LeagueID:     req.LeagueID,
		Name:         req.Name,
		Settings:     s,
		Participants: participants,
		Items:        req.Items,
	}
}

// CreateAuction builds a scheduled auction from a roster and catalog.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}
	var req createAuctionRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := h.auctions.Create(r.Context(), req.setup(h.defaults))
	if err != nil {
		writeServiceError(w, r, h.logger, "create auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// listAuctionsResponse wraps the list auctions response.
type listAuctionsResponse struct {
	Auctions []domain.AuctionSummary `json:"auctions"`
}

// ListAuctions lists auctions, optionally filtered by status.
// GET /api/auctions?status=active,paused&limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	statuses, err := parseStatuses(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := h.auctions.List(r.Context(), statuses, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list auctions", err)
		return
	}
	if rows == nil {
		rows = []domain.AuctionSummary{}
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: rows})
}

// GetAuction returns the current snapshot.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	snap, err := h.auctions.Snapshot(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get auction", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetState returns the full aggregate.
// GET /api/auctions/{id}/state
func (h *AuctionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.auctions.State(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get state", err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// reasonRequest is the optional body of pause, force-complete and cancel.
type reasonRequest struct {
	Reason string `json:"reason"`
}

// Start opens a scheduled auction.
// POST /api/auctions/{id}/start
func (h *AuctionHandler) Start(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "start auction", h.auctions.Start)
}

// Resume reopens a paused auction.
// POST /api/auctions/{id}/resume
func (h *AuctionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "resume auction", h.auctions.Resume)
}

// CompleteItem sells the item up for bidding without waiting for the timer.
// POST /api/auctions/{id}/complete-item
func (h *AuctionHandler) CompleteItem(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "complete item", h.auctions.CompleteCurrentItem)
}

// AutoNominate nominates for the current nominator.
// POST /api/auctions/{id}/auto-nominate
func (h *AuctionHandler) AutoNominate(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "auto nominate", h.auctions.AutoNominate)
}

// ResetOrder reshuffles the draft order before start.
// POST /api/auctions/{id}/reset-order
func (h *AuctionHandler) ResetOrder(w http.ResponseWriter, r *http.Request) {
	h.admin(w, r, "reset order", h.auctions.ResetOrder)
}

// Pause suspends an active auction.
// POST /api/auctions/{id}/pause
func (h *AuctionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.adminWithReason(w, r, "pause auction", h.auctions.Pause)
}

// ForceComplete closes the auction irregularly.
// POST /api/auctions/{id}/force-complete
func (h *AuctionHandler) ForceComplete(w http.ResponseWriter, r *http.Request) {
	h.adminWithReason(w, r, "force complete", h.auctions.ForceComplete)
}

// Cancel terminates the auction.
// POST /api/auctions/{id}/cancel
func (h *AuctionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.adminWithReason(w, r, "cancel auction", h.auctions.Cancel)
}

func (h *AuctionHandler) admin(
	w http.ResponseWriter, r *http.Request, action string,
	fn func(context.Context, string) (domain.Snapshot, error),
) {
	if !requireOperator(w, r) {
		return
	}
	snap, err := fn(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, action, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *AuctionHandler) adminWithReason(
	w http.ResponseWriter, r *http.Request, action string,
	fn func(context.Context, string, string) (domain.Snapshot, error),
) {
	if !requireOperator(w, r) {
		return
	}
	var req reasonRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snap, err := fn(r.Context(), pathParam(r, "id"), strings.TrimSpace(req.Reason))
	if err != nil {
		writeServiceError(w, r, h.logger, action, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type nominateRequest struct {
	ItemID      string `json:"item_id"`
	NominatorID string `json:"nominator_id"`
	StartingBid int64  `json:"starting_bid"`
}

// Nominate puts an item up for bidding.
// POST /api/auctions/{id}/nominations
func (h *AuctionHandler) Nominate(w http.ResponseWriter, r *http.Request) {
	var req nominateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ItemID == "" || req.NominatorID == "" {
		writeError(w, http.StatusBadRequest, "item_id and nominator_id are required")
		return
	}
	if !requireActor(w, r, req.NominatorID) {
		return
	}
	snap, err := h.auctions.Nominate(r.Context(), pathParam(r, "id"), req.ItemID, req.NominatorID, req.StartingBid)
	if err != nil {
		writeServiceError(w, r, h.logger, "nominate", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

type bidRequest struct {
	ItemID   string `json:"item_id"`
	BidderID string `json:"bidder_id"`
	Amount   int64  `json:"amount"`
}

// PlaceBid raises the price of the item up for bidding.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ItemID == "" || req.BidderID == "" {
		writeError(w, http.StatusBadRequest, "item_id and bidder_id are required")
		return
	}
	if !requireActor(w, r, req.BidderID) {
		return
	}
	snap, err := h.auctions.PlaceBid(r.Context(), pathParam(r, "id"), req.ItemID, req.BidderID, req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "place bid", err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// listBidsResponse wraps the bid history response.
type listBidsResponse struct {
	Bids []domain.Bid `json:"bids"`
}

// ListBids returns the bid history of one item, or pages through the whole
// auction in placement order.
// GET /api/auctions/{id}/bids?item_id=...&limit=50&offset=0
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	var (
		bids []domain.Bid
		err  error
	)
	if itemID := r.URL.Query().Get("item_id"); itemID != "" {
		bids, err = h.auctions.Bids(r.Context(), id, itemID)
	} else {
		bids, err = h.auctions.BidHistory(r.Context(), id, parseListOpts(r))
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "list bids", err)
		return
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	writeJSON(w, http.StatusOK, listBidsResponse{Bids: bids})
}

// GetBudget returns one participant's budget view.
// GET /api/auctions/{id}/participants/{pid}/budget
func (h *AuctionHandler) GetBudget(w http.ResponseWriter, r *http.Request) {
	b, err := h.auctions.Budget(r.Context(), pathParam(r, "id"), pathParam(r, "pid"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get budget", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListBudgets returns every participant's budget view.
// GET /api/auctions/{id}/budgets
func (h *AuctionHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := h.auctions.Budgets(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list budgets", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": budgets})
}

// ListItems returns the item slots in catalog order.
// GET /api/auctions/{id}/items
func (h *AuctionHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.auctions.Items(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// orderResponse carries both schedules.
type orderResponse struct {
	DraftOrder      []domain.DraftOrderEntry      `json:"draft_order"`
	NominationOrder []domain.NominationOrderEntry `json:"nomination_order"`
}

// GetOrder returns the draft order and the nomination schedule.
// GET /api/auctions/{id}/order
func (h *AuctionHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	draft, nom, err := h.auctions.Order(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{DraftOrder: draft, NominationOrder: nom})
}

// GetResults returns the final rosters of a finished auction.
// GET /api/auctions/{id}/results
func (h *AuctionHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	state, err := h.auctions.State(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get results", err)
		return
	}
	if !state.Auction.Status.Terminal() {
		writeServiceError(w, r, h.logger, "get results",
			domain.NewAuctionError(domain.ErrInvalidState, "auction has not finished"))
		return
	}
	writeJSON(w, http.StatusOK, domain.BuildResults(state, time.Now().UTC()))
}
