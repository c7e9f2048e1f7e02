package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

var ErrScreenShareActive = errors.New("screen share already active")

// ScreenShareOptions configures the secondary screen-share identity.
type ScreenShareOptions struct {
	Dialer    core.SignalDialer
	NewDevice core.DeviceFactory
	Suffix    string
}

// ProducerRegistry owns the local participant's producers and, separately,
// the screen-share identity with its own producers.
type ProducerRegistry struct {
	tm     *TransportManager
	neg    *Negotiator
	screen ScreenShareOptions

	mu        sync.Mutex
	producers map[domain.MediaKind]core.Producer
	tracks    []core.LocalTrack
	share     *ScreenShare
	starting  bool
}

func NewProducerRegistry(tm *TransportManager, neg *Negotiator, screen ScreenShareOptions) *ProducerRegistry {
	return &ProducerRegistry{
		tm:        tm,
		neg:       neg,
		screen:    screen,
		producers: make(map[domain.MediaKind]core.Producer),
	}
}

// StartProducing publishes every present track of stream over the send
// transport. Tracks the router has no codec for are skipped. Producers that
// succeed are kept even when another one fails.
func (r *ProducerRegistry) StartProducing(ctx context.Context, stream *core.LocalStream) error {
	tracks := stream.Tracks()
	if len(tracks) == 0 {
		return core.ErrNoLocalMedia
	}
	tracks = producible(r.neg, tracks, "app.producers")
	if len(tracks) == 0 {
		return fmt.Errorf("%w: router accepts none of the local tracks", core.ErrProduceFailed)
	}
	t, err := r.tm.CreateSendTransport(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrProduceFailed, err)
	}

	r.mu.Lock()
	r.tracks = append(r.tracks, tracks...)
	r.mu.Unlock()

	var g errgroup.Group
	for _, track := range tracks {
		g.Go(func() error {
			r.mu.Lock()
			_, exists := r.producers[track.Kind()]
			r.mu.Unlock()
			if exists {
				return nil
			}
			p, err := t.Produce(ctx, track, nil)
			if err != nil {
				log.Error().Err(err).Str("module", "app.producers").Str("kind", string(track.Kind())).Msg("produce failed")
				return fmt.Errorf("%w: %s: %w", core.ErrProduceFailed, track.Kind(), err)
			}
			if !track.Enabled() {
				p.Pause()
			}
			r.mu.Lock()
			r.producers[track.Kind()] = p
			r.mu.Unlock()
			log.Info().Str("module", "app.producers").Str("producer_id", p.ID()).Str("kind", string(p.Kind())).Bool("paused", p.Paused()).Msg("producer created")
			return nil
		})
	}
	return g.Wait()
}

func producible(neg *Negotiator, tracks []core.LocalTrack, module string) []core.LocalTrack {
	return lo.Filter(tracks, func(t core.LocalTrack, _ int) bool {
		if neg.CanProduce(t.Kind()) {
			return true
		}
		log.Warn().Str("module", module).Str("kind", string(t.Kind())).Msg("router cannot receive this kind, track not published")
		return false
	})
}

// ToggleAudio pauses (mute) or resumes the microphone producer. It reports
// whether a producer existed.
func (r *ProducerRegistry) ToggleAudio(mute bool) bool {
	return r.setPaused(domain.KindAudio, mute)
}

// ToggleVideo pauses (disable) or resumes the camera producer.
func (r *ProducerRegistry) ToggleVideo(disable bool) bool {
	return r.setPaused(domain.KindVideo, disable)
}

func (r *ProducerRegistry) setPaused(kind domain.MediaKind, paused bool) bool {
	r.mu.Lock()
	p, ok := r.producers[kind]
	r.mu.Unlock()
	if !ok || p.Closed() {
		log.Warn().Str("module", "app.producers").Str("kind", string(kind)).Msg("no producer to toggle")
		return false
	}
	if paused {
		p.Pause()
	} else {
		p.Resume()
	}
	return true
}

func (r *ProducerRegistry) Producer(kind domain.MediaKind) (core.Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind.IsScreen() {
		if r.share == nil {
			return nil, false
		}
		return r.share.Producer(kind)
	}
	p, ok := r.producers[kind]
	return p, ok
}

// StartScreenShare joins roomID as a second identity and publishes stream
// from it. The registry owns stream from here on and stops it on failure.
func (r *ProducerRegistry) StartScreenShare(ctx context.Context, name string, roomID domain.RoomID, stream *core.LocalStream) (*ScreenShare, error) {
	r.mu.Lock()
	if r.share != nil || r.starting {
		r.mu.Unlock()
		stream.Stop()
		return nil, ErrScreenShareActive
	}
	r.starting = true
	r.mu.Unlock()

	share, err := startScreenShare(ctx, r.screen, domain.ScreenShareName(name, r.screen.Suffix), roomID, stream)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = false
	if err != nil {
		return nil, err
	}
	r.share = share
	return share, nil
}

// StopScreenShare tears the screen-share identity down. The primary
// producers are not touched.
func (r *ProducerRegistry) StopScreenShare() bool {
	r.mu.Lock()
	share := r.share
	r.share = nil
	r.mu.Unlock()
	if share == nil {
		return false
	}
	share.Stop()
	return true
}

func (r *ProducerRegistry) ScreenSharing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.share != nil
}

// Count reports the number of owned producers, screen share included.
func (r *ProducerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.producers)
	if r.share != nil {
		n += r.share.Count()
	}
	return n
}

// Cleanup closes every producer and transport and stops every owned track.
// Safe to call when nothing is owned.
func (r *ProducerRegistry) Cleanup() {
	r.StopScreenShare()

	r.mu.Lock()
	producers := r.producers
	tracks := r.tracks
	r.producers = make(map[domain.MediaKind]core.Producer)
	r.tracks = nil
	r.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	r.tm.CloseSendTransport()
	for _, t := range tracks {
		t.Stop()
	}
	if len(producers) > 0 {
		log.Info().Str("module", "app.producers").Int("closed", len(producers)).Msg("producers cleaned up")
	}
}
