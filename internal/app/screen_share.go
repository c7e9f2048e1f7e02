package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ScreenShare is the virtual participant publishing the shared screen. It has
// its own signaling connection, device and send transport.
type ScreenShare struct {
	name          string
	participantID domain.ParticipantID
	sig           core.SignalChannel
	tm            *TransportManager
	stream        *core.LocalStream

	mu        sync.Mutex
	producers map[domain.MediaKind]core.Producer
	stopped   bool
}

func startScreenShare(ctx context.Context, opts ScreenShareOptions, name string, roomID domain.RoomID, stream *core.LocalStream) (_ *ScreenShare, err error) {
	logger := log.With().Str("module", "app.screen").Str("room", string(roomID)).Str("name", name).Logger()

	s := &ScreenShare{name: name, stream: stream, producers: make(map[domain.MediaKind]core.Producer)}
	defer func() {
		if err != nil {
			logger.Warn().Err(err).Msg("screen share start failed")
			s.Stop()
		}
	}()

	if len(stream.Tracks()) == 0 {
		return nil, core.ErrNoLocalMedia
	}
	if s.sig, err = opts.Dialer.Dial(ctx); err != nil {
		return nil, fmt.Errorf("dial screen share signaling: %w", err)
	}
	go drain(s.sig, logger)

	raw, err := s.sig.Request(ctx, core.ReqJoinRoom, core.JoinRequest{Name: name, RoomID: roomID})
	if err != nil {
		return nil, fmt.Errorf("screen share join: %w", err)
	}
	var reply core.JoinReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("%w: screen share join reply: %v", core.ErrSignalingRejected, err)
	}
	s.participantID = reply.ParticipantID

	dev, err := opts.NewDevice()
	if err != nil {
		return nil, fmt.Errorf("screen share device: %w", err)
	}
	neg := NewNegotiator(dev)
	if err := neg.Load(reply.Capabilities); err != nil {
		return nil, err
	}
	tracks := producible(neg, stream.Tracks(), "app.screen")
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: router accepts none of the screen tracks", core.ErrProduceFailed)
	}
	s.tm = NewTransportManager(s.sig, dev)
	t, err := s.tm.CreateSendTransport(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrProduceFailed, err)
	}

	for _, track := range tracks {
		p, err := t.Produce(ctx, track, core.AppData{core.AppDataScreenShare: true})
		if err != nil {
			return nil, fmt.Errorf("%w: screen %s: %w", core.ErrProduceFailed, track.Kind(), err)
		}
		s.mu.Lock()
		s.producers[track.Kind().Screen()] = p
		s.mu.Unlock()
		logger.Info().Str("producer_id", p.ID()).Str("kind", string(track.Kind().Screen())).Msg("screen producer created")
	}
	return s, nil
}

// drain discards pushes addressed to the screen-share identity.
func drain(sig core.SignalChannel, logger zerolog.Logger) {
	for e := range sig.Events() {
		logger.Debug().Str("event", fmt.Sprintf("%T", e)).Msg("screen share push ignored")
	}
}

func (s *ScreenShare) Name() string                        { return s.name }
func (s *ScreenShare) ParticipantID() domain.ParticipantID { return s.participantID }
func (s *ScreenShare) Stream() *core.LocalStream           { return s.stream }

func (s *ScreenShare) Producer(kind domain.MediaKind) (core.Producer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.producers[kind]
	return p, ok
}

func (s *ScreenShare) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.producers)
}

// Stop closes the screen producers, their transport and the secondary
// signaling connection, then stops the capture. Idempotent.
func (s *ScreenShare) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	producers := s.producers
	s.producers = make(map[domain.MediaKind]core.Producer)
	s.mu.Unlock()

	ids := make([]string, 0, len(producers))
	for _, p := range producers {
		ids = append(ids, p.ID())
		p.Close()
	}
	if s.sig != nil && len(ids) > 0 {
		if err := s.sig.Emit(core.EmitCloseProducers, core.CloseProducers{ProducerIDs: ids}); err != nil {
			log.Warn().Err(err).Str("module", "app.screen").Msg("closeProducers emit failed")
		}
	}
	if s.tm != nil {
		s.tm.Close()
	}
	if s.sig != nil {
		_ = s.sig.Close()
	}
	s.stream.Stop()
	log.Info().Str("module", "app.screen").Str("name", s.name).Int("closed", len(ids)).Msg("screen share stopped")
}
