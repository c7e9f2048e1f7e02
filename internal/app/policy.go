package app

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/samber/lo"
)

// AssignInput is everything the policy looks at for one reassignment pass.
type AssignInput struct {
	Bundles  []BundleView // arrival order
	Speakers []domain.ParticipantID
	Pinned   domain.ParticipantID
	// Exclude lists identities that must never occupy a slot: the local
	// participant and its own screen-share identity.
	Exclude      []domain.ParticipantID
	ExcludeNames []string
}

type Policy interface {
	Assign(in AssignInput) []core.StreamAssignment
}

// SlotPolicy puts the pinned participant first, then active speakers in server
// order, then everyone else in arrival order, truncated to Slots.
type SlotPolicy struct {
	Slots int
}

func (p SlotPolicy) Assign(in AssignInput) []core.StreamAssignment {
	candidates := lo.Filter(in.Bundles, func(b BundleView, _ int) bool {
		return !lo.Contains(in.Exclude, b.Participant.ID) && !lo.Contains(in.ExcludeNames, b.Participant.Name)
	})
	byPID := lo.KeyBy(candidates, func(b BundleView) domain.ParticipantID { return b.Participant.ID })

	ordered := make([]BundleView, 0, len(candidates))
	if b, ok := byPID[in.Pinned]; ok && in.Pinned != "" {
		ordered = append(ordered, b)
	}
	for _, pid := range lo.Uniq(in.Speakers) {
		if b, ok := byPID[pid]; ok {
			ordered = append(ordered, b)
		}
	}
	ordered = append(ordered, candidates...)
	ordered = lo.UniqBy(ordered, func(b BundleView) string { return b.AudioID })

	if p.Slots > 0 && len(ordered) > p.Slots {
		ordered = ordered[:p.Slots]
	}
	return lo.Map(ordered, func(b BundleView, i int) core.StreamAssignment {
		return core.StreamAssignment{
			Slot:          i,
			ParticipantID: b.Participant.ID,
			Name:          b.Participant.Name,
			AudioID:       b.AudioID,
			Speaking:      lo.Contains(in.Speakers, b.Participant.ID),
			Pinned:        in.Pinned != "" && b.Participant.ID == in.Pinned,
			Stream:        b.Stream,
		}
	})
}
