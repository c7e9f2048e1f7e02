// Package devices captures local camera, microphone and screen media.
// Capture needs platform drivers and is only wired on Linux.
package devices

import (
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Width        int
	Height       int
	VideoBitRate int
}

// Track adapts a captured track to core.LocalTrack. Disabling only flips
// the flag; the producer pause stops the actual sending.
type Track struct {
	id     string
	kind   domain.MediaKind
	local  webrtc.TrackLocal
	closer func() error

	enabled atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	onEnded []func(error)
}

func newTrack(kind domain.MediaKind, local webrtc.TrackLocal, closer func() error) *Track {
	t := &Track{id: local.ID(), kind: kind, local: local, closer: closer}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string                    { return t.id }
func (t *Track) Kind() domain.MediaKind        { return t.kind }
func (t *Track) Enabled() bool                 { return t.enabled.Load() }
func (t *Track) SetEnabled(v bool)             { t.enabled.Store(v) }
func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

func (t *Track) OnEnded(f func(error)) {
	t.mu.Lock()
	t.onEnded = append(t.onEnded, f)
	t.mu.Unlock()
}

// ended runs the registered callbacks once the source stops on its own.
func (t *Track) ended(err error) {
	if t.stopped.Load() {
		return
	}
	log.Info().Err(err).Str("module", "devices").Str("track", t.id).Msg("capture ended")
	t.mu.Lock()
	fs := append([]func(error)(nil), t.onEnded...)
	t.mu.Unlock()
	for _, f := range fs {
		f(err)
	}
}

func (t *Track) Stop() {
	if !t.stopped.CompareAndSwap(false, true) {
		return
	}
	if err := t.closer(); err != nil {
		log.Debug().Err(err).Str("module", "devices").Str("track", t.id).Msg("close")
	}
}
