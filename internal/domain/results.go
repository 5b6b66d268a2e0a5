package domain

import "time"

// SoldItem is one acquisition on a final roster.
type SoldItem struct {
	ItemID string    `json:"item_id"`
	Name   string    `json:"name,omitempty"`
	Price  int64     `json:"price"`
	SoldAt time.Time `json:"sold_at"`
}

// Roster is a participant's final holdings.
type Roster struct {
	ParticipantID string     `json:"participant_id"`
	Budget        int64      `json:"budget"`
	Spent         int64      `json:"spent"`
	Remaining     int64      `json:"remaining"`
	Items         []SoldItem `json:"items"`
}

// AuctionResults is the settled outcome of a finished auction, handed to
// the archive and to downstream league systems.
type AuctionResults struct {
	AuctionID   string        `json:"auction_id"`
	LeagueID    string        `json:"league_id"`
	Name        string        `json:"name"`
	Status      AuctionStatus `json:"status"`
	Irregular   bool          `json:"irregular"`
	CloseReason string        `json:"close_reason,omitempty"`
	StartTime   *time.Time    `json:"start_time,omitempty"`
	EndTime     *time.Time    `json:"end_time,omitempty"`
	Rosters     []Roster      `json:"rosters"`
	Unsold      []string      `json:"unsold"`
	BidCount    int           `json:"bid_count"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// BuildResults derives the final rosters from an aggregate. Rosters follow
// the draft order; items within a roster follow catalog order.
func BuildResults(state AuctionState, at time.Time) AuctionResults {
	a := state.Auction
	res := AuctionResults{
		AuctionID:   a.ID,
		LeagueID:    a.LeagueID,
		Name:        a.Name,
		Status:      a.Status,
		Irregular:   a.Irregular,
		CloseReason: a.CloseReason,
		StartTime:   a.StartTime,
		EndTime:     a.EndTime,
		Unsold:      []string{},
		BidCount:    len(state.Bids),
		GeneratedAt: at,
	}

	sold := make(map[string][]SoldItem, len(state.Participants))
	for _, it := range state.Items {
		if it.Status != ItemStatusSold {
			res.Unsold = append(res.Unsold, it.ItemID)
			continue
		}
		si := SoldItem{ItemID: it.ItemID, Name: it.Name, Price: it.FinalPrice}
		if it.SoldAt != nil {
			si.SoldAt = *it.SoldAt
		}
		sold[it.SoldTo] = append(sold[it.SoldTo], si)
	}

	byID := make(map[string]Participant, len(state.Participants))
	for _, p := range state.Participants {
		byID[p.ID] = p
	}
	order := make([]string, 0, len(state.Participants))
	for _, d := range state.DraftOrder {
		order = append(order, d.ParticipantID)
	}
	if len(order) == 0 {
		for _, p := range state.Participants {
			order = append(order, p.ID)
		}
	}

	for _, id := range order {
		p := byID[id]
		items := sold[id]
		if items == nil {
			items = []SoldItem{}
		}
		res.Rosters = append(res.Rosters, Roster{
			ParticipantID: id,
			Budget:        p.Budget,
			Spent:         p.Spent,
			Remaining:     p.Remaining(),
			Items:         items,
		})
	}
	return res
}
