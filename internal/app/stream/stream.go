// Package stream combines the audio and video consumer tracks of one remote
// participant into a single playable stream.
package stream

import (
	"context"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

type attachment struct {
	audio core.Sink
	video core.Sink

	audioMuted bool
	videoMuted bool
}

// Stream implements core.CombinedStream. It keeps one relay per media kind and
// re-attaches the current sinks whenever a track is added.
type Stream struct {
	id  string
	ctx context.Context

	mu       sync.RWMutex
	relays   map[domain.MediaKind]*Relay
	attached map[string]attachment
	closed   bool
}

func New(ctx context.Context, id string) *Stream {
	return &Stream{
		id:       id,
		ctx:      ctx,
		relays:   make(map[domain.MediaKind]*Relay),
		attached: make(map[string]attachment),
	}
}

func (s *Stream) ID() string { return s.id }

// SetTrack starts relaying track as the stream's audio or video.
func (s *Stream) SetTrack(kind domain.MediaKind, track core.RemoteTrack) {
	kind = kind.Base()
	logger := log.With().
		Str("module", "app.stream").
		Str("stream", s.id).
		Str("kind", string(kind)).
		Logger()

	relayCtx, cancel := context.WithCancel(s.ctx)
	relay := NewRelay(track, cancel)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return
	}
	if old, ok := s.relays[kind]; ok {
		logger.Debug().Msg("replacing existing relay")
		old.Stop()
	}
	s.relays[kind] = relay
	for id, a := range s.attached {
		if sink := pick(a, kind); sink != nil {
			relay.AddSink(id, a.outSink(kind, sink))
		}
	}
	s.mu.Unlock()

	go relay.loop(relayCtx, &logger)
}

// RemoveTrack stops the relay of kind. The stream stays usable with the other kind.
func (s *Stream) RemoveTrack(kind domain.MediaKind) {
	s.mu.Lock()
	relay, ok := s.relays[kind.Base()]
	delete(s.relays, kind.Base())
	s.mu.Unlock()
	if ok {
		relay.Stop()
	}
}

func (s *Stream) SetMuted(kind domain.MediaKind, muted bool) {
	s.mu.RLock()
	relay, ok := s.relays[kind.Base()]
	s.mu.RUnlock()
	if ok {
		relay.SetMuted(muted)
	}
}

func (s *Stream) Muted(kind domain.MediaKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	relay, ok := s.relays[kind.Base()]
	return ok && relay.Muted()
}

func (s *Stream) HasAudio() bool { return s.has(domain.KindAudio) }

func (s *Stream) HasVideo() bool { return s.has(domain.KindVideo) }

func (s *Stream) has(kind domain.MediaKind) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.relays[kind]
	return ok
}

// Attach binds the stream to a display sink pair. Either sink may be nil.
func (s *Stream) Attach(sinkID string, audio, video core.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	a := attachment{audio: audio, video: video}
	if old, ok := s.attached[sinkID]; ok {
		a.audioMuted, a.videoMuted = old.audioMuted, old.videoMuted
	}
	s.attached[sinkID] = a
	for kind, relay := range s.relays {
		if sink := pick(a, kind); sink != nil {
			relay.AddSink(sinkID, a.outSink(kind, sink))
		}
	}
}

// MuteSink stops forwarding kind to one attached sink while the other sinks
// keep receiving. The setting survives track replacement. It reports false
// when sinkID is not attached.
func (s *Stream) MuteSink(sinkID string, kind domain.MediaKind, muted bool) bool {
	kind = kind.Base()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attached[sinkID]
	if !ok {
		return false
	}
	if kind == domain.KindAudio {
		a.audioMuted = muted
	} else {
		a.videoMuted = muted
	}
	s.attached[sinkID] = a
	if relay, ok := s.relays[kind]; ok {
		relay.SetSinkMuted(sinkID, muted)
	}
	return true
}

func (s *Stream) Detach(sinkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, sinkID)
	for _, relay := range s.relays {
		relay.RemoveSink(sinkID)
	}
}

// Close stops every relay and drops all attachments.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	relays := s.relays
	s.relays = make(map[domain.MediaKind]*Relay)
	s.attached = make(map[string]attachment)
	s.mu.Unlock()

	for _, relay := range relays {
		relay.Stop()
	}
}

func (a attachment) outSink(kind domain.MediaKind, sink core.Sink) *OutSink {
	o := NewOutSink(sink)
	if (kind == domain.KindAudio && a.audioMuted) || (kind != domain.KindAudio && a.videoMuted) {
		o.SetMuted(true)
	}
	return o
}

func pick(a attachment, kind domain.MediaKind) core.Sink {
	if kind == domain.KindAudio {
		return a.audio
	}
	return a.video
}
