package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/huddle/internal/app/stream"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/errgroup"
)

// Bundle is the audio+video consumer pair of one remote participant. Either
// consumer may be nil.
type Bundle struct {
	AudioID     string
	Participant domain.ParticipantInfo
	Transport   core.Transport
	Audio       core.Consumer
	Video       core.Consumer
	Stream      *stream.Stream
	Seq         uint64
}

func (b *Bundle) consumers() []core.Consumer {
	out := make([]core.Consumer, 0, 2)
	if b.Audio != nil {
		out = append(out, b.Audio)
	}
	if b.Video != nil {
		out = append(out, b.Video)
	}
	return out
}

// BundleView is a read-only copy of a bundle for assignment and APIs.
type BundleView struct {
	AudioID     string
	Participant domain.ParticipantInfo
	Stream      core.CombinedStream
	HasAudio    bool
	HasVideo    bool
	Seq         uint64
}

type reservation struct {
	participant domain.ParticipantID
	gen         uint64
	cancelled   bool
}

// ConsumerRegistry owns the consumer bundles keyed by remote audio id.
type ConsumerRegistry struct {
	ctx context.Context
	sig core.SignalChannel
	neg *Negotiator
	tm  *TransportManager

	mu      sync.RWMutex
	bundles map[string]*Bundle
	pending map[string]*reservation
	seq     uint64
	gen     uint64
}

func NewConsumerRegistry(ctx context.Context, sig core.SignalChannel, neg *Negotiator, tm *TransportManager) *ConsumerRegistry {
	return &ConsumerRegistry{
		ctx:     ctx,
		sig:     sig,
		neg:     neg,
		tm:      tm,
		bundles: make(map[string]*Bundle),
		pending: make(map[string]*reservation),
	}
}

// Consume creates bundles for every newly announced participant, concurrently
// across participants. It returns the participants that got a bundle.
func (r *ConsumerRegistry) Consume(ctx context.Context, ann domain.NewProducers) []domain.ParticipantInfo {
	var (
		wg    conc.WaitGroup
		mu    sync.Mutex
		added []domain.ParticipantInfo
	)
	for i := 0; i < ann.Len(); i++ {
		audioID, videoID, info := ann.AudioIDs[i], ann.VideoID(i), ann.Participants[i]
		res, ok := r.reserve(audioID, info.ID)
		if !ok {
			log.Debug().Str("module", "app.consumers").Str("audio_id", audioID).Msg("bundle exists, skip")
			continue
		}
		wg.Go(func() {
			if r.consumeParticipant(ctx, res, audioID, videoID, info) {
				mu.Lock()
				added = append(added, info)
				mu.Unlock()
			}
		})
	}
	wg.Wait()
	return added
}

// reserve claims audioID before any network work so that concurrent
// announcements of the same participant yield one bundle.
func (r *ConsumerRegistry) reserve(audioID string, pid domain.ParticipantID) (*reservation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if audioID == "" {
		return nil, false
	}
	if _, ok := r.bundles[audioID]; ok {
		return nil, false
	}
	// A cancelled reservation belongs to a participant that already left; a
	// rejoin must not wait for it.
	if p, ok := r.pending[audioID]; ok && !p.cancelled {
		return nil, false
	}
	if pid != "" {
		for _, b := range r.bundles {
			if b.Participant.ID == pid {
				return nil, false
			}
		}
		for _, p := range r.pending {
			if p.participant == pid && !p.cancelled {
				return nil, false
			}
		}
	}
	res := &reservation{participant: pid, gen: r.gen}
	r.pending[audioID] = res
	return res, true
}

func (r *ConsumerRegistry) consumeParticipant(ctx context.Context, res *reservation, audioID, videoID string, info domain.ParticipantInfo) bool {
	logger := log.With().Str("module", "app.consumers").Str("audio_id", audioID).Str("participant", string(info.ID)).Logger()

	// release drops the reservation and reports whether the receive transport
	// under audioID is still ours to close.
	release := func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.pending[audioID] == res {
			delete(r.pending, audioID)
		}
		return r.ownsTransport(audioID)
	}

	t, err := r.tm.CreateRecvTransport(ctx, audioID)
	if err != nil {
		logger.Warn().Err(err).Msg("recv transport failed, participant skipped")
		release()
		return false
	}

	var audio, video core.Consumer
	var g errgroup.Group
	g.Go(func() (err error) {
		audio, err = r.consumeOne(ctx, t, audioID, domain.KindAudio)
		return err
	})
	if videoID != "" {
		g.Go(func() (err error) {
			video, err = r.consumeOne(ctx, t, videoID, domain.KindVideo)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, core.ErrConsumeUnavailable) {
			logger.Debug().Err(err).Msg("partial consume")
		} else {
			logger.Warn().Err(err).Msg("consume failed")
		}
	}

	if audio == nil && video == nil {
		logger.Warn().Msg("nothing consumable, participant abandoned")
		if release() {
			r.tm.CloseRecvTransport(audioID)
		}
		return false
	}

	s := stream.New(r.ctx, audioID)
	if audio != nil {
		s.SetTrack(domain.KindAudio, audio.Track())
	}
	if video != nil {
		s.SetTrack(domain.KindVideo, video.Track())
	}
	b := &Bundle{AudioID: audioID, Participant: info, Transport: t, Audio: audio, Video: video, Stream: s}

	r.mu.Lock()
	stale := res.cancelled || res.gen != r.gen || r.pending[audioID] != res
	if r.pending[audioID] == res {
		delete(r.pending, audioID)
	}
	owned := true
	if stale {
		owned = r.ownsTransport(audioID)
	} else {
		r.seq++
		b.Seq = r.seq
		r.bundles[audioID] = b
	}
	r.mu.Unlock()

	if stale {
		logger.Info().Bool("transport_shared", !owned).Msg("participant gone while consuming, discarding bundle")
		for _, c := range b.consumers() {
			c.Close()
		}
		b.Stream.Close()
		if owned {
			r.tm.CloseRecvTransport(audioID)
		}
		return false
	}
	logger.Info().Bool("audio", audio != nil).Bool("video", video != nil).Msg("bundle created")
	return true
}

// ownsTransport reports whether no newer reservation or bundle has taken over
// audioID, and with it the receive transport keyed by it. Caller holds r.mu.
func (r *ConsumerRegistry) ownsTransport(audioID string) bool {
	_, pending := r.pending[audioID]
	_, bundled := r.bundles[audioID]
	return !pending && !bundled
}

// consumeOne returns (nil, err) when the server cannot serve the track; the
// caller treats that as an absent consumer.
func (r *ConsumerRegistry) consumeOne(ctx context.Context, t core.Transport, trackID string, kind domain.MediaKind) (core.Consumer, error) {
	raw, err := r.sig.Request(ctx, core.ReqConsumeMedia, core.ConsumeRequest{
		Capabilities:       r.neg.Capabilities(),
		ParticipantTrackID: trackID,
		Kind:               kind,
	})
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", kind, err)
	}
	if s, ok := core.ReplyString(raw); ok {
		switch s {
		case core.ReplyCannotConsume, core.ReplyConsumeFailed:
			return nil, fmt.Errorf("%w: %s %s", core.ErrConsumeUnavailable, kind, s)
		default:
			return nil, fmt.Errorf("%w: consume %s: %s", core.ErrSignalingRejected, kind, s)
		}
	}
	var params core.ConsumerParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("%w: consumer params: %v", core.ErrSignalingRejected, err)
	}
	if params.Kind == "" {
		params.Kind = kind
	}
	if params.ProducerID == "" {
		params.ProducerID = trackID
	}

	c, err := t.Consume(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", kind, err)
	}

	raw, err = r.sig.Request(ctx, core.ReqUnpauseConsumer, core.UnpauseRequest{ParticipantTrackID: trackID, Kind: kind})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("unpause %s: %w", kind, err)
	}
	if s, ok := core.ReplyString(raw); !ok || s != core.ReplySuccess {
		c.Close()
		return nil, fmt.Errorf("%w: unpause %s: %s", core.ErrSignalingRejected, kind, string(raw))
	}
	c.Resume()
	if kind == domain.KindVideo {
		if err := c.RequestKeyFrame(); err != nil {
			log.Debug().Err(err).Str("module", "app.consumers").Str("consumer_id", c.ID()).Msg("keyframe request failed")
		}
	}
	return c, nil
}

// HandleProducerClosed closes the sub-consumer bound to producerID and drops
// the bundle with its transport once both sub-consumers are gone.
func (r *ConsumerRegistry) HandleProducerClosed(producerID string) bool {
	r.mu.Lock()
	var (
		target  *Bundle
		closing core.Consumer
		removed bool
	)
	for _, b := range r.bundles {
		switch {
		case b.Audio != nil && b.Audio.ProducerID() == producerID:
			closing, b.Audio = b.Audio, nil
		case b.Video != nil && b.Video.ProducerID() == producerID:
			closing, b.Video = b.Video, nil
		default:
			continue
		}
		target = b
		break
	}
	if target != nil && target.Audio == nil && target.Video == nil {
		delete(r.bundles, target.AudioID)
		removed = true
	}
	r.mu.Unlock()

	if target == nil {
		return false
	}
	closing.Close()
	target.Stream.RemoveTrack(closing.Kind())
	if removed {
		target.Stream.Close()
		r.tm.CloseRecvTransport(target.AudioID)
	}
	log.Info().Str("module", "app.consumers").Str("producer_id", producerID).Str("audio_id", target.AudioID).Bool("bundle_removed", removed).Msg("producer closed")
	return true
}

// HandleConsumerPaused pauses the consumer with id and kind. A miss is ignored.
func (r *ConsumerRegistry) HandleConsumerPaused(consumerID string, kind domain.MediaKind) bool {
	return r.setPaused(func(c core.Consumer) bool {
		return c.ID() == consumerID && (kind == "" || c.Kind() == kind.Base())
	}, true)
}

func (r *ConsumerRegistry) HandleConsumerResumed(consumerID string, kind domain.MediaKind) bool {
	return r.setPaused(func(c core.Consumer) bool {
		return c.ID() == consumerID && (kind == "" || c.Kind() == kind.Base())
	}, false)
}

// HandleProducerPaused pauses the consumer bound to the remote producer.
func (r *ConsumerRegistry) HandleProducerPaused(producerID string) bool {
	return r.setPaused(func(c core.Consumer) bool { return c.ProducerID() == producerID }, true)
}

func (r *ConsumerRegistry) HandleProducerResumed(producerID string) bool {
	return r.setPaused(func(c core.Consumer) bool { return c.ProducerID() == producerID }, false)
}

func (r *ConsumerRegistry) setPaused(match func(core.Consumer) bool, paused bool) bool {
	r.mu.RLock()
	var (
		found core.Consumer
		owner *Bundle
	)
	for _, b := range r.bundles {
		for _, c := range b.consumers() {
			if match(c) {
				found, owner = c, b
				break
			}
		}
		if found != nil {
			break
		}
	}
	r.mu.RUnlock()
	if found == nil {
		return false
	}
	if paused {
		found.Pause()
	} else {
		found.Resume()
		if found.Kind() == domain.KindVideo {
			if err := found.RequestKeyFrame(); err != nil {
				log.Debug().Err(err).Str("module", "app.consumers").Str("consumer_id", found.ID()).Msg("keyframe request failed")
			}
		}
	}
	owner.Stream.SetMuted(found.Kind(), paused)
	log.Debug().Str("module", "app.consumers").Str("consumer_id", found.ID()).Bool("paused", paused).Msg("consumer pause state changed")
	return true
}

// HandleParticipantLeft removes every bundle owned by pid, including one still
// being created.
func (r *ConsumerRegistry) HandleParticipantLeft(pid domain.ParticipantID) []string {
	r.mu.Lock()
	var gone []*Bundle
	for id, b := range r.bundles {
		if b.Participant.ID == pid {
			gone = append(gone, b)
			delete(r.bundles, id)
		}
	}
	for _, p := range r.pending {
		if p.participant == pid {
			p.cancelled = true
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(gone))
	for _, b := range gone {
		r.closeBundle(b)
		ids = append(ids, b.AudioID)
	}
	if len(ids) > 0 {
		log.Info().Str("module", "app.consumers").Str("participant", string(pid)).Strs("audio_ids", ids).Msg("participant bundles removed")
	}
	return ids
}

func (r *ConsumerRegistry) closeBundle(b *Bundle) {
	for _, c := range b.consumers() {
		c.Close()
	}
	b.Stream.Close()
	r.tm.CloseRecvTransport(b.AudioID)
}

// Cleanup closes every bundle and invalidates in-flight creations.
func (r *ConsumerRegistry) Cleanup() {
	r.mu.Lock()
	bundles := r.bundles
	r.bundles = make(map[string]*Bundle)
	r.pending = make(map[string]*reservation)
	r.gen++
	r.mu.Unlock()

	for _, b := range bundles {
		r.closeBundle(b)
	}
	if len(bundles) > 0 {
		log.Info().Str("module", "app.consumers").Int("closed", len(bundles)).Msg("bundles cleaned up")
	}
}

// Count reports the number of bundles.
func (r *ConsumerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bundles)
}

// Pending reports whether any bundle is still being created.
func (r *ConsumerRegistry) Pending() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending) > 0
}

func (r *ConsumerRegistry) Bundle(audioID string) (BundleView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bundles[audioID]
	if !ok {
		return BundleView{}, false
	}
	return view(b), true
}

// Bundles returns every bundle in arrival order.
func (r *ConsumerRegistry) Bundles() []BundleView {
	r.mu.RLock()
	out := make([]BundleView, 0, len(r.bundles))
	for _, b := range r.bundles {
		out = append(out, view(b))
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b BundleView) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

func view(b *Bundle) BundleView {
	return BundleView{
		AudioID:     b.AudioID,
		Participant: b.Participant,
		Stream:      b.Stream,
		HasAudio:    b.Audio != nil,
		HasVideo:    b.Video != nil,
		Seq:         b.Seq,
	}
}
