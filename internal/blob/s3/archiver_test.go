package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

type memBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	puts      int
	multipart int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.types[path] = contentType
	m.puts++
	return nil
}

func (m *memBlobs) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = b
	m.multipart++
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for p, b := range m.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(b))})
		}
	}
	return out, nil
}

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

type memAudit struct {
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func finishedState() domain.AuctionState {
	t0 := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	sold := t0.Add(time.Minute)
	return domain.AuctionState{
		Auction: domain.Auction{
			ID:       "a1",
			LeagueID: "league-7",
			Name:     "Spring draft",
			Status:   domain.AuctionStatusCompleted,
		},
		Items: []domain.ItemSlot{
			{ItemID: "t1", Name: "Hawks", Position: 1, Status: domain.ItemStatusSold, SoldTo: "p2", SoldAt: &sold, FinalPrice: 40},
			{ItemID: "t2", Name: "Owls", Position: 2, Status: domain.ItemStatusAvailable},
		},
		Participants: []domain.Participant{
			{ID: "p1", Budget: 100, IsActive: true},
			{ID: "p2", Budget: 100, Spent: 40, OwnedItemIDs: []string{"t1"}, IsActive: true},
		},
		DraftOrder: []domain.DraftOrderEntry{
			{ParticipantID: "p2", Position: 1},
			{ParticipantID: "p1", Position: 2},
		},
		Bids: []domain.Bid{
			{ID: "b1", AuctionID: "a1", ItemID: "t1", BidderID: "p2", Amount: 10, PlacedAt: t0},
			{ID: "b2", AuctionID: "a1", ItemID: "t1", BidderID: "p1", Amount: 35, PlacedAt: t0},
			{ID: "b3", AuctionID: "a1", ItemID: "t1", BidderID: "p2", Amount: 40, PlacedAt: t0, IsWinning: true},
		},
	}
}

func TestArchiveAuctionWritesBidsAndResults(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	arc := NewArchiver(blobs, blobs, audit)

	dir, err := arc.ArchiveAuction(context.Background(), finishedState())
	require.NoError(t, err)
	assert.Equal(t, "archive/auctions/a1/", dir)

	lines := strings.Split(strings.TrimSpace(string(blobs.objects[dir+"bids.jsonl"])), "\n")
	require.Len(t, lines, 3)
	var last domain.Bid
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, int64(40), last.Amount)
	assert.Equal(t, contentTypeJSONL, blobs.types[dir+"bids.jsonl"])

	res, err := arc.Results(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "league-7", res.LeagueID)
	assert.Equal(t, []string{"t2"}, res.Unsold)
	assert.Equal(t, 3, res.BidCount)
	require.Len(t, res.Rosters, 2)
	assert.Equal(t, "p2", res.Rosters[0].ParticipantID)
	require.Len(t, res.Rosters[0].Items, 1)
	assert.Equal(t, int64(40), res.Rosters[0].Items[0].Price)
	assert.Equal(t, int64(60), res.Rosters[0].Remaining)
	assert.Empty(t, res.Rosters[1].Items)

	assert.Equal(t, []string{"archive.auction"}, audit.events)

	ids, err := arc.Archived(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, ids)
}

func TestArchiveAuctionSkipsWhenResultsExist(t *testing.T) {
	blobs := newMemBlobs()
	arc := NewArchiver(blobs, blobs, &memAudit{})

	_, err := arc.ArchiveAuction(context.Background(), finishedState())
	require.NoError(t, err)
	puts := blobs.puts

	_, err = arc.ArchiveAuction(context.Background(), finishedState())
	require.NoError(t, err)
	assert.Equal(t, puts, blobs.puts)
}

func TestArchiveAuctionRejectsLiveAuction(t *testing.T) {
	blobs := newMemBlobs()
	arc := NewArchiver(blobs, blobs, nil)

	state := finishedState()
	state.Auction.Status = domain.AuctionStatusActive
	_, err := arc.ArchiveAuction(context.Background(), state)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Empty(t, blobs.objects)
}

func TestResultsNotArchived(t *testing.T) {
	arc := NewArchiver(newMemBlobs(), newMemBlobs(), nil)
	_, err := arc.Results(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "http://e2.example.com", normaliseEndpoint("e2.example.com", false))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
}
