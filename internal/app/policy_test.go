package app

import (
	"testing"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func bundles(names ...string) []BundleView {
	return lo.Map(names, func(n string, i int) BundleView {
		return BundleView{
			AudioID:     "a-" + n,
			Participant: domain.ParticipantInfo{ID: domain.ParticipantID(n), Name: n},
			Seq:         uint64(i + 1),
		}
	})
}

func order(in AssignInput, slots int) []domain.ParticipantID {
	out := SlotPolicy{Slots: slots}.Assign(in)
	for i, a := range out {
		if a.Slot != i {
			panic("slots must be dense")
		}
	}
	return lo.Map(out, func(a core.StreamAssignment, _ int) domain.ParticipantID { return a.ParticipantID })
}

func TestSlotPolicyArrivalOrder(t *testing.T) {
	got := order(AssignInput{Bundles: bundles("bob", "carol", "dave")}, 4)
	assert.Equal(t, []domain.ParticipantID{"bob", "carol", "dave"}, got)
}

func TestSlotPolicySpeakersFirst(t *testing.T) {
	got := order(AssignInput{
		Bundles:  bundles("bob", "carol", "dave", "erin"),
		Speakers: []domain.ParticipantID{"dave", "ghost", "carol", "dave"},
	}, 4)
	assert.Equal(t, []domain.ParticipantID{"dave", "carol", "bob", "erin"}, got)
}

func TestSlotPolicyPinnedBeatsSpeakers(t *testing.T) {
	in := AssignInput{
		Bundles:  bundles("bob", "carol", "dave"),
		Speakers: []domain.ParticipantID{"carol"},
		Pinned:   "dave",
	}
	out := SlotPolicy{Slots: 2}.Assign(in)
	assert.Len(t, out, 2)
	assert.Equal(t, domain.ParticipantID("dave"), out[0].ParticipantID)
	assert.True(t, out[0].Pinned)
	assert.Equal(t, domain.ParticipantID("carol"), out[1].ParticipantID)
	assert.True(t, out[1].Speaking)
	assert.False(t, out[1].Pinned)
}

func TestSlotPolicyUnknownPinIgnored(t *testing.T) {
	got := order(AssignInput{Bundles: bundles("bob", "carol"), Pinned: "ghost"}, 4)
	assert.Equal(t, []domain.ParticipantID{"bob", "carol"}, got)
}

func TestSlotPolicyExcludesSelfAndOwnScreen(t *testing.T) {
	got := order(AssignInput{
		Bundles:      bundles("me", "bob", "me (screen)", "carol"),
		Speakers:     []domain.ParticipantID{"me"},
		Exclude:      []domain.ParticipantID{"me"},
		ExcludeNames: []string{"me (screen)"},
	}, 4)
	assert.Equal(t, []domain.ParticipantID{"bob", "carol"}, got)
}

func TestSlotPolicyTruncates(t *testing.T) {
	got := order(AssignInput{Bundles: bundles("a", "b", "c", "d", "e")}, 3)
	assert.Equal(t, []domain.ParticipantID{"a", "b", "c"}, got)
}
