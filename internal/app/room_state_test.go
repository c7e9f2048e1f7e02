package app

import (
	"testing"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestRoomStateFollowsParticipants(t *testing.T) {
	s := NewRoomState()
	s.Replace(domain.RoomSnapshot{
		RoomID:           "r1",
		OwnerID:          "bob",
		Participants:     []domain.ParticipantInfo{{ID: "bob", Name: "bob", IsOwner: true}},
		ParticipantCount: 2,
	})

	s.AddParticipants(domain.ParticipantInfo{ID: "carol"}, domain.ParticipantInfo{ID: "bob"})
	snap := s.Snapshot()
	assert.Len(t, snap.Participants, 2)
	assert.Equal(t, 3, snap.ParticipantCount)

	assert.True(t, s.RemoveParticipant("carol"))
	assert.False(t, s.RemoveParticipant("carol"))
	snap = s.Snapshot()
	assert.Len(t, snap.Participants, 1)
	assert.Equal(t, 2, snap.ParticipantCount)
	assert.Equal(t, domain.ParticipantID("bob"), snap.Participants[0].ID)
}

func TestRoomStateUpdateAndCopies(t *testing.T) {
	s := NewRoomState()
	s.Replace(domain.RoomSnapshot{RoomID: "r1", Participants: []domain.ParticipantInfo{{ID: "bob"}}})

	s.Update(domain.RoomUpdated{OwnerID: "carol", IsPasswordProtected: true})
	snap := s.Snapshot()
	assert.Equal(t, domain.ParticipantID("carol"), snap.OwnerID)
	assert.True(t, snap.IsPasswordProtected)
	assert.Len(t, snap.Participants, 1)

	s.Update(domain.RoomUpdated{OwnerID: "carol", Participants: []domain.ParticipantInfo{{ID: "carol"}, {ID: "dave"}}})
	assert.Equal(t, 2, s.Snapshot().ParticipantCount)

	snap.Participants[0].Name = "mutated"
	assert.NotEqual(t, "mutated", s.Snapshot().Participants[0].Name)
}
