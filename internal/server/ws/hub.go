package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256

	// replayLimit caps the events replayed to a reconnecting client.
	replayLimit = 200
)

// allAuctions is the pattern the hub subscribes to on the signal bus.
var allAuctions = domain.AuctionChannel("*")

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the HTTP middleware; the token gates access.
		return true
	},
}

// SnapshotSource serves the current snapshot sent to clients on connect.
type SnapshotSource interface {
	Snapshot(ctx context.Context, auctionID string) (domain.Snapshot, error)
}

// client represents a single WebSocket connection.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	subs map[string]bool // subscribed channels
	mu   sync.RWMutex
}

// subscribeMsg is the JSON message a client sends to change subscriptions.
type subscribeMsg struct {
	Action   string   `json:"action"`   // "subscribe" or "unsubscribe"
	Auctions []string `json:"auctions"` // auction ids; "*" for all
}

// envelope wraps hub-generated messages. Auction events are forwarded as
// published.
type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub manages a set of connected WebSocket clients and broadcasts auction
// events from the Redis signal bus to the clients watching that auction.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	snapshots  SnapshotSource
	mu         sync.RWMutex
	logger     *slog.Logger
	mode       string
	startedAt  time.Time
}

// broadcastMsg carries a message along with its auction channel so the hub
// can route it only to clients subscribed to that auction.
type broadcastMsg struct {
	channel string
	data    []byte
}

// Config captures runtime metadata used in the status message sent to
// WebSocket clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	Snapshots SnapshotSource
}

// NewHub creates a new WebSocket hub that bridges a Redis SignalBus to
// connected WebSocket clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		snapshots:  cfg.Snapshots,
		logger:     logger.With(slog.String("component", "ws_hub")),
		mode:       mode,
		startedAt:  startedAt,
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// It handles client registration, unregistration, and message broadcasting.
// The loop exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	// Start the background subscription to every auction channel.
	go h.subscribe(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver hands msg to every subscribed client.
func (h *Hub) deliver(msg broadcastMsg) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.isSubscribed(msg.channel) {
			select {
			case c.send <- msg.data:
			default:
				// Client's send buffer is full; drop the message.
				h.logger.Warn("ws: dropping message for slow client",
					slog.String("channel", msg.channel),
				)
			}
		}
	}
}

// subscribe listens on every auction channel and forwards received events
// to the hub's broadcast channel.
func (h *Hub) subscribe(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, allAuctions)
	if err != nil {
		h.logger.Error("ws: failed to subscribe to auction events",
			slog.String("channel", allAuctions),
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to auction events", slog.String("channel", allAuctions))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: auction subscription closed")
				return
			}
			id := eventAuctionID(data)
			if id == "" {
				continue
			}
			select {
			case h.broadcast <- broadcastMsg{channel: domain.AuctionChannel(id), data: data}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// eventAuctionID extracts the auction id from a published event.
func eventAuctionID(data []byte) string {
	var ev struct {
		AuctionID string `json:"auction_id"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ""
	}
	return ev.AuctionID
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub. With auction_id the client watches that auction
// and receives its snapshot; since=<stream id> replays missed events first.
// GET /ws?auction_id=...&since=...
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	auctionID := strings.TrimSpace(q.Get("auction_id"))
	since := strings.TrimSpace(q.Get("since"))

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	if auctionID != "" {
		c.subs[domain.AuctionChannel(auctionID)] = true
	} else {
		c.subs[allAuctions] = true
	}

	c.sendInitialStatus()
	if auctionID != "" {
		c.sendSnapshot(r.Context(), auctionID)
	}
	if since != "" {
		c.replay(r.Context(), since)
	}
	h.register <- c

	// Start read and write pumps in separate goroutines.
	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection. It handles
// subscription management requests (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if jsonErr := json.Unmarshal(message, &sub); jsonErr == nil && sub.Action != "" {
			c.handleSubscription(sub)
		}
	}
}

// handleSubscription processes subscribe/unsubscribe requests from the client.
func (c *client) handleSubscription(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range msg.Auctions {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		ch := domain.AuctionChannel(id)
		switch msg.Action {
		case "subscribe":
			c.subs[ch] = true
		case "unsubscribe":
			delete(c.subs, ch)
		}
	}
}

// push queues msg without blocking; a full buffer drops it.
func (c *client) push(msg []byte) {
	select {
	case c.send <- msg:
	default:
	}
}

// sendInitialStatus pushes a small JSON envelope so clients can immediately
// mark the connection as healthy even when no auction events are flowing yet.
func (c *client) sendInitialStatus() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	c.mu.RLock()
	subs := make([]string, 0, len(c.subs))
	for ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.RUnlock()

	msg, err := json.Marshal(envelope{Type: "hub_status", Payload: map[string]any{
		"mode":           c.hub.mode,
		"uptime_seconds": uptime,
		"subscriptions":  subs,
	}})
	if err != nil {
		return
	}
	c.push(msg)
}

// sendSnapshot pushes the auction's current snapshot.
func (c *client) sendSnapshot(ctx context.Context, auctionID string) {
	if c.hub.snapshots == nil {
		return
	}
	snap, err := c.hub.snapshots.Snapshot(ctx, auctionID)
	if err != nil {
		c.hub.logger.Warn("ws: snapshot unavailable",
			slog.String("auction_id", auctionID),
			slog.String("error", err.Error()),
		)
		return
	}
	msg, err := json.Marshal(envelope{Type: "snapshot", Payload: snap})
	if err != nil {
		return
	}
	c.push(msg)
}

// replay pushes the events the client missed since lastID from the durable
// event stream, filtered by its subscriptions.
func (c *client) replay(ctx context.Context, lastID string) {
	msgs, err := c.hub.bus.StreamRead(ctx, domain.AuctionEventStream, lastID, replayLimit)
	if err != nil {
		c.hub.logger.Warn("ws: replay failed",
			slog.String("since", lastID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, m := range msgs {
		id := eventAuctionID(m.Payload)
		if id != "" && c.isSubscribed(domain.AuctionChannel(id)) {
			c.push(m.Payload)
		}
	}
}

// isSubscribed checks whether the client is subscribed to the given channel.
func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Direct match.
	if c.subs[channel] {
		return true
	}

	// Wildcard match: "auction:*" matches "auction:a1".
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}

	return false
}

// writePump pumps messages from the hub to the WebSocket connection as
// text frames and sends periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
