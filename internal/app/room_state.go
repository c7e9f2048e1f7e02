package app

import (
	"sync"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/samber/lo"
)

// RoomState keeps the server-confirmed room snapshot current.
type RoomState struct {
	mu   sync.RWMutex
	snap domain.RoomSnapshot
}

func NewRoomState() *RoomState {
	return &RoomState{}
}

// Replace installs the snapshot of a (re-)join.
func (s *RoomState) Replace(snap domain.RoomSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = snap.Clone()
	s.snap.Participants = lo.UniqBy(s.snap.Participants, func(p domain.ParticipantInfo) domain.ParticipantID { return p.ID })
	if s.snap.ParticipantCount < len(s.snap.Participants) {
		s.snap.ParticipantCount = len(s.snap.Participants)
	}
}

func (s *RoomState) AddParticipants(infos ...domain.ParticipantInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.snap.Participants)
	s.snap.Participants = lo.UniqBy(append(s.snap.Participants, infos...), func(p domain.ParticipantInfo) domain.ParticipantID { return p.ID })
	s.snap.ParticipantCount += len(s.snap.Participants) - before
}

func (s *RoomState) RemoveParticipant(pid domain.ParticipantID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.snap.Participants)
	s.snap.Participants = lo.Reject(s.snap.Participants, func(p domain.ParticipantInfo, _ int) bool { return p.ID == pid })
	removed := before - len(s.snap.Participants)
	s.snap.ParticipantCount = max(s.snap.ParticipantCount-removed, len(s.snap.Participants))
	return removed > 0
}

// Update applies a roomUpdated push. A nil participant list keeps the current one.
func (s *RoomState) Update(u domain.RoomUpdated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.OwnerID = u.OwnerID
	s.snap.IsPasswordProtected = u.IsPasswordProtected
	if u.Participants != nil {
		s.snap.Participants = lo.UniqBy(append([]domain.ParticipantInfo(nil), u.Participants...), func(p domain.ParticipantInfo) domain.ParticipantID { return p.ID })
		s.snap.ParticipantCount = len(s.snap.Participants)
	}
}

func (s *RoomState) Snapshot() domain.RoomSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}
