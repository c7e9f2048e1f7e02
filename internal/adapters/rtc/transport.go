package rtc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrTransportClosed = errors.New("transport closed")

// TrackSource is implemented by local tracks that can feed an RTPSender.
type TrackSource interface {
	TrackLocal() webrtc.TrackLocal
}

type Transport struct {
	id     string
	dir    domain.TransportDirection
	api    *webrtc.API
	remote core.TransportParams
	h      core.TransportHandlers
	cname  string

	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport

	// connMu serializes the one-time handshake.
	connMu    sync.Mutex
	connected bool

	mu        sync.Mutex
	closed    bool
	mid       int
	producers []*Producer
	consumers []*Consumer
}

func newTransport(api *webrtc.API, servers []webrtc.ICEServer, dir domain.TransportDirection, params core.TransportParams, h core.TransportHandlers) (*Transport, error) {
	gatherer, err := api.NewICEGatherer(webrtc.ICEGatherOptions{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("ice gatherer: %w", err)
	}
	ice := api.NewICETransport(gatherer)
	dtls, err := api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, fmt.Errorf("dtls transport: %w", err)
	}

	t := &Transport{
		id:       params.ID,
		dir:      dir,
		api:      api,
		remote:   params,
		h:        h,
		cname:    uuid.NewString(),
		gatherer: gatherer,
		ice:      ice,
		dtls:     dtls,
	}
	ice.OnConnectionStateChange(func(s webrtc.ICETransportState) {
		if t.h.StateChange != nil {
			t.h.StateChange(connectionState(s))
		}
	})
	return t, nil
}

func (t *Transport) ID() string                           { return t.id }
func (t *Transport) Direction() domain.TransportDirection { return t.dir }

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// connect runs the handshake on first use: local DTLS parameters go to the
// server through the Connect handler before ICE and DTLS start.
func (t *Transport) connect(ctx context.Context) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.connected {
		return nil
	}
	if t.Closed() {
		return ErrTransportClosed
	}

	if err := t.gatherer.Gather(); err != nil {
		return fmt.Errorf("gather: %w", err)
	}
	local, err := t.dtls.GetLocalParameters()
	if err != nil {
		return fmt.Errorf("local dtls: %w", err)
	}
	role := localRole(t.remote.DTLSParameters.Role)
	if t.h.Connect != nil {
		if err := t.h.Connect(ctx, localDTLS(local, role)); err != nil {
			return err
		}
	}

	candidates, err := iceCandidates(t.remote.ICECandidates)
	if err != nil {
		return err
	}
	if err := t.ice.SetRemoteCandidates(candidates); err != nil {
		return fmt.Errorf("remote candidates: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		iceRole := webrtc.ICERoleControlling
		if err := t.ice.Start(t.gatherer, iceParameters(t.remote.ICEParameters), &iceRole); err != nil {
			done <- fmt.Errorf("ice start: %w", err)
			return
		}
		if err := t.dtls.Start(remoteDTLS(t.remote.DTLSParameters, role)); err != nil {
			done <- fmt.Errorf("dtls start: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		t.Close()
		return ctx.Err()
	}

	t.connected = true
	log.Info().Str("module", "rtc").Str("transport", t.id).Str("dir", string(t.dir)).Msg("transport connected")
	return nil
}

func (t *Transport) Produce(ctx context.Context, track core.LocalTrack, appData core.AppData) (core.Producer, error) {
	if t.dir != domain.DirectionSend {
		return nil, fmt.Errorf("produce on %s transport", t.dir)
	}
	src, ok := track.(TrackSource)
	if !ok {
		return nil, fmt.Errorf("track %s cannot be sent", track.ID())
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	sender, err := t.api.NewRTPSender(src.TrackLocal(), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp sender: %w", err)
	}
	params := sender.GetParameters()
	if err := sender.Send(params); err != nil {
		_ = sender.Stop()
		return nil, fmt.Errorf("send: %w", err)
	}
	go drainRTCP(sender.Read)

	t.mu.Lock()
	mid := strconv.Itoa(t.mid)
	t.mid++
	t.mu.Unlock()

	kind := track.Kind()
	id, err := t.h.Produce(ctx, kind, sendParameters(params, mid, t.cname), appData)
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}

	p := &Producer{id: id, kind: kind, appData: appData, sender: sender, track: src.TrackLocal()}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		p.Close()
		return nil, ErrTransportClosed
	}
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, params core.ConsumerParams) (core.Consumer, error) {
	if t.dir != domain.DirectionRecv {
		return nil, fmt.Errorf("consume on %s transport", t.dir)
	}
	recv, err := receiveParameters(params.RTPParameters)
	if err != nil {
		return nil, err
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}

	receiver, err := t.api.NewRTPReceiver(codecType(params.Kind), t.dtls)
	if err != nil {
		return nil, fmt.Errorf("rtp receiver: %w", err)
	}
	if err := receiver.Receive(recv); err != nil {
		_ = receiver.Stop()
		return nil, fmt.Errorf("receive: %w", err)
	}
	go drainRTCP(receiver.Read)

	c := &Consumer{
		params:   params,
		ssrc:     uint32(recv.Encodings[0].SSRC),
		receiver: receiver,
		dtls:     t.dtls,
	}
	c.paused.Store(true)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		c.Close()
		return nil, ErrTransportClosed
	}
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

// Close stops every producer and consumer on this transport. Idempotent.
func (t *Transport) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	producers, consumers := t.producers, t.consumers
	t.producers, t.consumers = nil, nil
	t.mu.Unlock()

	for _, p := range producers {
		p.Close()
	}
	for _, c := range consumers {
		c.Close()
	}
	if err := t.dtls.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("transport", t.id).Msg("dtls stop")
	}
	if err := t.ice.Stop(); err != nil {
		log.Debug().Err(err).Str("module", "rtc").Str("transport", t.id).Msg("ice stop")
	}
	_ = t.gatherer.Close()
	log.Info().Str("module", "rtc").Str("transport", t.id).Msg("transport closed")
}

// drainRTCP keeps the interceptor chain fed until the reader is stopped.
func drainRTCP(read func([]byte) (int, interceptor.Attributes, error)) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := read(buf); err != nil {
			return
		}
	}
}
