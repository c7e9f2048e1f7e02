package coretest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

var DefaultDTLS = core.DTLSParameters{
	Role:         "auto",
	Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
}

// Device is a fake media engine. Transports connect on first use like the real one.
type Device struct {
	mu         sync.Mutex
	loaded     bool
	caps       core.RTPCapabilities
	LoadErr    error
	LoadCalls  int
	transports []*Transport
}

func NewDevice() *Device { return &Device{} }

func (d *Device) Loaded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loaded
}

func (d *Device) Load(caps core.RTPCapabilities) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.LoadCalls++
	if d.LoadErr != nil {
		return d.LoadErr
	}
	d.loaded = true
	d.caps = caps
	return nil
}

func (d *Device) RTPCapabilities() core.RTPCapabilities {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.caps
}

func (d *Device) CanProduce(kind domain.MediaKind) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.caps.Codecs {
		if c.Kind == kind.Base() {
			return true
		}
	}
	return false
}

func (d *Device) CreateSendTransport(params core.TransportParams, h core.TransportHandlers) (core.Transport, error) {
	return d.create(params, domain.DirectionSend, h), nil
}

func (d *Device) CreateRecvTransport(params core.TransportParams, h core.TransportHandlers) (core.Transport, error) {
	return d.create(params, domain.DirectionRecv, h), nil
}

func (d *Device) create(params core.TransportParams, dir domain.TransportDirection, h core.TransportHandlers) *Transport {
	t := &Transport{id: params.ID, dir: dir, h: h}
	d.mu.Lock()
	d.transports = append(d.transports, t)
	d.mu.Unlock()
	return t
}

func (d *Device) Transports() []*Transport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Transport(nil), d.transports...)
}

type Transport struct {
	id  string
	dir domain.TransportDirection
	h   core.TransportHandlers

	connectMu sync.Mutex
	connected bool

	mu        sync.Mutex
	closed    bool
	producers []*Producer
	consumers []*Consumer
}

func (t *Transport) ID() string                           { return t.id }
func (t *Transport) Direction() domain.TransportDirection { return t.dir }

func (t *Transport) connect(ctx context.Context) error {
	t.connectMu.Lock()
	defer t.connectMu.Unlock()
	if t.connected {
		return nil
	}
	if t.h.Connect != nil {
		if err := t.h.Connect(ctx, DefaultDTLS); err != nil {
			return err
		}
	}
	t.connected = true
	if t.h.StateChange != nil {
		t.h.StateChange(core.ConnConnected)
	}
	return nil
}

func (t *Transport) Produce(ctx context.Context, track core.LocalTrack, appData core.AppData) (core.Producer, error) {
	if t.dir != domain.DirectionSend {
		return nil, fmt.Errorf("produce on %s transport", t.dir)
	}
	if t.Closed() {
		return nil, core.ErrClosed
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	id, err := t.h.Produce(ctx, track.Kind(), core.RTPParameters{}, appData)
	if err != nil {
		return nil, err
	}
	p := &Producer{id: id, kind: track.Kind(), appData: appData}
	t.mu.Lock()
	t.producers = append(t.producers, p)
	t.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, params core.ConsumerParams) (core.Consumer, error) {
	if t.dir != domain.DirectionRecv {
		return nil, fmt.Errorf("consume on %s transport", t.dir)
	}
	if t.Closed() {
		return nil, core.ErrClosed
	}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	c := NewConsumer(params)
	t.mu.Lock()
	t.consumers = append(t.consumers, c)
	t.mu.Unlock()
	return c, nil
}

func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) Producers() []*Producer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Producer(nil), t.producers...)
}

func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Consumer(nil), t.consumers...)
}

type Producer struct {
	id      string
	kind    domain.MediaKind
	appData core.AppData
	paused  atomic.Bool
	closed  atomic.Bool
}

func NewProducer(id string, kind domain.MediaKind) *Producer {
	return &Producer{id: id, kind: kind}
}

func (p *Producer) ID() string             { return p.id }
func (p *Producer) Kind() domain.MediaKind { return p.kind }
func (p *Producer) AppData() core.AppData  { return p.appData }
func (p *Producer) Paused() bool           { return p.paused.Load() }
func (p *Producer) Pause()                 { p.paused.Store(true) }
func (p *Producer) Resume()                { p.paused.Store(false) }
func (p *Producer) Close()                 { p.closed.Store(true) }
func (p *Producer) Closed() bool           { return p.closed.Load() }

// Consumer starts paused, like a server-side consumer.
type Consumer struct {
	params    core.ConsumerParams
	track     *RemoteTrack
	paused    atomic.Bool
	closed    atomic.Bool
	KeyFrames atomic.Int32
	// KeyFrameErr fails keyframe requests once set.
	KeyFrameErr error
}

func NewConsumer(params core.ConsumerParams) *Consumer {
	c := &Consumer{params: params, track: NewRemoteTrack(params.ID)}
	c.paused.Store(true)
	return c
}

func (c *Consumer) ID() string                { return c.params.ID }
func (c *Consumer) ProducerID() string        { return c.params.ProducerID }
func (c *Consumer) Kind() domain.MediaKind    { return c.params.Kind }
func (c *Consumer) Track() core.RemoteTrack   { return c.track }
func (c *Consumer) Paused() bool              { return c.paused.Load() }
func (c *Consumer) Pause()                    { c.paused.Store(true) }
func (c *Consumer) Resume()                   { c.paused.Store(false) }
func (c *Consumer) Closed() bool              { return c.closed.Load() }
func (c *Consumer) RemoteTrack() *RemoteTrack { return c.track }

func (c *Consumer) RequestKeyFrame() error {
	c.KeyFrames.Add(1)
	return c.KeyFrameErr
}

func (c *Consumer) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.track.Close()
	}
}

// RemoteTrack yields packets written with Feed until closed.
type RemoteTrack struct {
	id      string
	packets chan *rtp.Packet
	done    chan struct{}
	once    sync.Once
}

func NewRemoteTrack(id string) *RemoteTrack {
	return &RemoteTrack{id: id, packets: make(chan *rtp.Packet, 16), done: make(chan struct{})}
}

func (r *RemoteTrack) ID() string { return r.id }

func (r *RemoteTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	select {
	case p := <-r.packets:
		return p, nil, nil
	case <-r.done:
		return nil, nil, io.EOF
	}
}

func (r *RemoteTrack) Feed(p *rtp.Packet) {
	select {
	case r.packets <- p:
	case <-r.done:
	}
}

func (r *RemoteTrack) Close() {
	r.once.Do(func() { close(r.done) })
}

// Track is a fake local track.
type Track struct {
	id      string
	kind    domain.MediaKind
	enabled atomic.Bool
	stopped atomic.Bool

	mu      sync.Mutex
	onEnded func(error)
}

func NewTrack(kind domain.MediaKind) *Track {
	t := &Track{id: uuid.NewString(), kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string             { return t.id }
func (t *Track) Kind() domain.MediaKind { return t.kind }
func (t *Track) Enabled() bool          { return t.enabled.Load() }
func (t *Track) SetEnabled(v bool)      { t.enabled.Store(v) }
func (t *Track) Stop()                  { t.stopped.Store(true) }
func (t *Track) Stopped() bool          { return t.stopped.Load() }

func (t *Track) OnEnded(f func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEnded = f
}

// End simulates the source ending on its own.
func (t *Track) End() {
	t.mu.Lock()
	f := t.onEnded
	t.mu.Unlock()
	t.Stop()
	if f != nil {
		f(io.EOF)
	}
}

func NewStream(audio, video bool) *core.LocalStream {
	s := &core.LocalStream{ID: uuid.NewString()}
	if audio {
		s.Audio = NewTrack(domain.KindAudio)
	}
	if video {
		s.Video = NewTrack(domain.KindVideo)
	}
	return s
}

// MediaDevices hands out fake streams and remembers them.
type MediaDevices struct {
	mu             sync.Mutex
	UserMediaErr   error
	DisplayErr     error
	UserCalls      int
	DisplayCalls   int
	UserStreams    []*core.LocalStream
	DisplayStreams []*core.LocalStream

	// Gate, when set, holds GetUserMedia until it is closed.
	Gate chan struct{}
}

func (m *MediaDevices) GetUserMedia(ctx context.Context, c core.MediaConstraints) (*core.LocalStream, error) {
	m.mu.Lock()
	m.UserCalls++
	gate := m.Gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UserMediaErr != nil {
		return nil, m.UserMediaErr
	}
	s := NewStream(true, true)
	m.UserStreams = append(m.UserStreams, s)
	return s, nil
}

func (m *MediaDevices) UserCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UserCalls
}

func (m *MediaDevices) GetDisplayMedia(ctx context.Context) (*core.LocalStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisplayCalls++
	if m.DisplayErr != nil {
		return nil, m.DisplayErr
	}
	s := NewStream(false, true)
	m.DisplayStreams = append(m.DisplayStreams, s)
	return s, nil
}
