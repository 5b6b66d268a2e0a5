package auction

import (
	"fmt"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// GenerateDraftOrder assigns participants distinct positions 1..N using a
// Fisher-Yates shuffle. A nil rnd uses DefaultRandSource.
func GenerateDraftOrder(participantIDs []string, rnd RandSource) ([]domain.DraftOrderEntry, error) {
	if len(participantIDs) == 0 {
		return nil, domain.NewAuctionError(domain.ErrInvalidState, "no participants to order")
	}
	if rnd == nil {
		rnd = DefaultRandSource
	}

	seen := make(map[string]struct{}, len(participantIDs))
	ids := make([]string, len(participantIDs))
	for i, id := range participantIDs {
		if _, dup := seen[id]; dup {
			return nil, domain.NewAuctionError(domain.ErrInvalidState, fmt.Sprintf("duplicate participant %q", id))
		}
		seen[id] = struct{}{}
		ids[i] = id
	}

	for i := len(ids) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}

	order := make([]domain.DraftOrderEntry, len(ids))
	for i, id := range ids {
		order[i] = domain.DraftOrderEntry{ParticipantID: id, Position: i + 1}
	}
	return order, nil
}
