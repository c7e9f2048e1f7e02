package core

import (
	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/rtp"
)

// Sink receives forwarded RTP of one remote track, e.g. a display slot.
type Sink interface {
	WriteRTP(p *rtp.Packet) error
}

// CombinedStream is the playable audio+video stream of one remote participant.
type CombinedStream interface {
	ID() string
	HasAudio() bool
	HasVideo() bool
	Attach(sinkID string, audio, video Sink)
	Detach(sinkID string)
	MuteSink(sinkID string, kind domain.MediaKind, muted bool) bool
}

// StreamAssignment binds one combined stream to one display slot.
type StreamAssignment struct {
	Slot          int                  `json:"slot"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Name          string               `json:"name"`
	AudioID       string               `json:"audioId"`
	Speaking      bool                 `json:"speaking"`
	Pinned        bool                 `json:"pinned"`
	Stream        CombinedStream       `json:"-"`
}

// Presenter is the UI side of the stream assignment. The core never touches
// presentation state directly.
type Presenter interface {
	Present(assignments []StreamAssignment)
	ShowLocalPreview(stream *LocalStream)
	Clear()
}
