package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// scriptedRand replays a fixed sequence for deterministic shuffles.
type scriptedRand struct {
	seq []int
	idx int
}

func (s *scriptedRand) Intn(n int) int {
	if s.idx >= len(s.seq) {
		return 0
	}
	v := s.seq[s.idx] % n
	s.idx++
	return v
}

func TestGenerateDraftOrder_Scripted(t *testing.T) {
	order, err := GenerateDraftOrder([]string{"a", "b", "c", "d"}, &scriptedRand{seq: []int{0, 0, 0}})
	require.NoError(t, err)

	want := []domain.DraftOrderEntry{
		{ParticipantID: "b", Position: 1},
		{ParticipantID: "c", Position: 2},
		{ParticipantID: "d", Position: 3},
		{ParticipantID: "a", Position: 4},
	}
	assert.Equal(t, want, order)
}

func TestGenerateDraftOrder_IsPermutation(t *testing.T) {
	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8"}
	order, err := GenerateDraftOrder(ids, nil)
	require.NoError(t, err)
	require.Len(t, order, len(ids))

	seen := map[string]bool{}
	for i, entry := range order {
		assert.Equal(t, i+1, entry.Position)
		assert.False(t, seen[entry.ParticipantID], "duplicate %s", entry.ParticipantID)
		seen[entry.ParticipantID] = true
	}
	for _, id := range ids {
		assert.True(t, seen[id], "missing %s", id)
	}
}

func TestGenerateDraftOrder_DoesNotMutateInput(t *testing.T) {
	ids := []string{"a", "b", "c"}
	_, err := GenerateDraftOrder(ids, &scriptedRand{seq: []int{0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestGenerateDraftOrder_Uniform(t *testing.T) {
	// Every one of the 3! orders should show up over enough draws.
	counts := map[string]int{}
	for i := 0; i < 600; i++ {
		order, err := GenerateDraftOrder([]string{"a", "b", "c"}, nil)
		require.NoError(t, err)
		key := order[0].ParticipantID + order[1].ParticipantID + order[2].ParticipantID
		counts[key]++
	}
	assert.Len(t, counts, 6)
}

func TestGenerateDraftOrder_Errors(t *testing.T) {
	_, err := GenerateDraftOrder(nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = GenerateDraftOrder([]string{"a", "a"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
