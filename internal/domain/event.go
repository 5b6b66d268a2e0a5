package domain

import "time"

// EventType names a state change observers can subscribe to.
type EventType string

const (
	EventAuctionStarted   EventType = "auction-started"
	EventTeamNominated    EventType = "team-nominated"
	EventBidPlaced        EventType = "bid-placed"
	EventTeamSold         EventType = "team-sold"
	EventAuctionPaused    EventType = "auction-paused"
	EventAuctionResumed   EventType = "auction-resumed"
	EventAuctionCompleted EventType = "auction-completed"
	EventAuctionCancelled EventType = "auction-cancelled"
	EventOrderReset       EventType = "order-reset"
)

// Event is emitted once per successful mutation. EntityID is the item,
// bid or auction the change applies to.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	AuctionID  string    `json:"auction_id"`
	EntityID   string    `json:"entity_id"`
	ActorID    string    `json:"actor_id,omitempty"`
	Amount     int64     `json:"amount,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Snapshot   Snapshot  `json:"snapshot"`
}

// AuctionChannel returns the pub/sub channel for one auction's events.
func AuctionChannel(auctionID string) string {
	return "auction:" + auctionID
}

// AuctionEventStream is the durable stream all auction events are appended to.
const AuctionEventStream = "auction-events"
