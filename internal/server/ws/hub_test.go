package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

type fakeBus struct {
	mu      sync.Mutex
	events  chan []byte
	stream  []domain.StreamMessage
	pattern string
	since   string
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	b.pattern = channel
	b.mu.Unlock()
	return b.events, nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(_ context.Context, _ string, lastID string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	b.since = lastID
	b.mu.Unlock()
	return b.stream, nil
}

type fakeSnapshots struct{}

func (fakeSnapshots) Snapshot(_ context.Context, id string) (domain.Snapshot, error) {
	return domain.Snapshot{AuctionID: id, Status: domain.AuctionStatusActive, CurrentBid: 7}, nil
}

func eventJSON(t *testing.T, auctionID, entityID string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.Event{ID: entityID, Type: domain.EventBidPlaced, AuctionID: auctionID, EntityID: entityID})
	require.NoError(t, err)
	return data
}

func readEnvelope(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestHubRoutesAuctionEvents(t *testing.T) {
	bus := &fakeBus{
		events: make(chan []byte, 8),
		stream: []domain.StreamMessage{
			{ID: "1-0", Payload: eventJSON(t, "a2", "missed-other")},
			{ID: "2-0", Payload: eventJSON(t, "a1", "missed")},
		},
	}
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Mode: "server", Snapshots: fakeSnapshots{}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?auction_id=a1&since=0-0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readEnvelope(t, conn)
	assert.Equal(t, "hub_status", status["type"])

	snap := readEnvelope(t, conn)
	assert.Equal(t, "snapshot", snap["type"])
	assert.Equal(t, "a1", snap["payload"].(map[string]any)["auction_id"])

	replayed := readEnvelope(t, conn)
	assert.Equal(t, "missed", replayed["entity_id"])

	require.Eventually(t, func() bool { return hub.clientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	bus.events <- eventJSON(t, "a2", "other")
	bus.events <- eventJSON(t, "a1", "live")

	live := readEnvelope(t, conn)
	assert.Equal(t, "live", live["entity_id"])

	bus.mu.Lock()
	assert.Equal(t, "auction:*", bus.pattern)
	assert.Equal(t, "0-0", bus.since)
	bus.mu.Unlock()
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{}}
	assert.False(t, c.isSubscribed("auction:a1"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Auctions: []string{"a1", " "}})
	assert.True(t, c.isSubscribed("auction:a1"))
	assert.False(t, c.isSubscribed("auction:a2"))

	c.handleSubscription(subscribeMsg{Action: "subscribe", Auctions: []string{"*"}})
	assert.True(t, c.isSubscribed("auction:a2"))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Auctions: []string{"*", "a1"}})
	assert.False(t, c.isSubscribed("auction:a1"))
}

func TestEventAuctionID(t *testing.T) {
	assert.Equal(t, "a1", eventAuctionID([]byte(`{"auction_id":"a1"}`)))
	assert.Empty(t, eventAuctionID([]byte(`not json`)))
}

