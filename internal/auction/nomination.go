package auction

import (
	"sort"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// Rounds returns ceil(catalogSize / participants).
func Rounds(catalogSize, participants int) int {
	if catalogSize <= 0 || participants <= 0 {
		return 0
	}
	return (catalogSize + participants - 1) / participants
}

// ScheduleLength is the number of entries in a full nomination schedule.
func ScheduleLength(catalogSize, participants int) int {
	return Rounds(catalogSize, participants) * participants
}

// GenerateNominationOrder expands a draft order into a snake schedule.
// Odd rounds walk draft positions 1..N, even rounds walk N..1, so the last
// nominator of a round opens the next one.
func GenerateNominationOrder(draft []domain.DraftOrderEntry, catalogSize int) []domain.NominationOrderEntry {
	n := len(draft)
	rounds := Rounds(catalogSize, n)
	if rounds == 0 {
		return nil
	}

	ordered := make([]domain.DraftOrderEntry, n)
	copy(ordered, draft)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Position < ordered[j].Position })

	schedule := make([]domain.NominationOrderEntry, 0, rounds*n)
	for r := 1; r <= rounds; r++ {
		for p := 1; p <= n; p++ {
			idx := p - 1
			if r%2 == 0 {
				idx = n - p
			}
			schedule = append(schedule, domain.NominationOrderEntry{
				Round:         r,
				Position:      p,
				ParticipantID: ordered[idx].ParticipantID,
			})
		}
	}
	return schedule
}
