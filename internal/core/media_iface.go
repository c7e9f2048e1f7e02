package core

import (
	"context"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

// ConnectionState mirrors the transport connection states reported by the media engine.
type ConnectionState string

const (
	ConnNew          ConnectionState = "new"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnDisconnected ConnectionState = "disconnected"
	ConnFailed       ConnectionState = "failed"
	ConnClosed       ConnectionState = "closed"
)

// TransportHandlers are the callbacks a transport invokes while it comes up.
type TransportHandlers struct {
	// Connect is called once with the local DTLS parameters before media flows.
	Connect func(ctx context.Context, dtls DTLSParameters) error
	// Produce is called per new producer and must return the server-side producer id.
	Produce func(ctx context.Context, kind domain.MediaKind, rtp RTPParameters, appData AppData) (string, error)
	// StateChange receives every connection state transition.
	StateChange func(state ConnectionState)
}

// Device is the local media engine bound to one signaling identity.
type Device interface {
	Loaded() bool
	// Load configures the engine with the router capabilities. It is called at most once.
	Load(caps RTPCapabilities) error
	RTPCapabilities() RTPCapabilities
	CanProduce(kind domain.MediaKind) bool
	CreateSendTransport(params TransportParams, h TransportHandlers) (Transport, error)
	CreateRecvTransport(params TransportParams, h TransportHandlers) (Transport, error)
}

// DeviceFactory creates a fresh engine for a new signaling identity.
type DeviceFactory func() (Device, error)

type Transport interface {
	ID() string
	Direction() domain.TransportDirection
	// Produce starts sending track. Only valid on send transports.
	Produce(ctx context.Context, track LocalTrack, appData AppData) (Producer, error)
	// Consume starts receiving the described stream paused. Only valid on receive transports.
	Consume(ctx context.Context, params ConsumerParams) (Consumer, error)
	Close()
	Closed() bool
}

type Producer interface {
	ID() string
	Kind() domain.MediaKind
	AppData() AppData
	Paused() bool
	Pause()
	Resume()
	Close()
	Closed() bool
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	Track() RemoteTrack
	Paused() bool
	Pause()
	Resume()
	// RequestKeyFrame asks the sender for a fresh key frame. No-op for audio.
	RequestKeyFrame() error
	Close()
	Closed() bool
}

// RemoteTrack is the receiving end of a consumer; *webrtc.TrackRemote satisfies it.
type RemoteTrack interface {
	ID() string
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// LocalTrack is a captured (or processed) local media track.
type LocalTrack interface {
	ID() string
	Kind() domain.MediaKind
	Enabled() bool
	SetEnabled(bool)
	// OnEnded registers a callback for when the source stops on its own,
	// e.g. the user ending a screen capture from the system UI.
	OnEnded(func(error))
	Stop()
}

// LocalStream groups the local tracks of one capture.
type LocalStream struct {
	ID    string
	Audio LocalTrack
	Video LocalTrack
}

func (s *LocalStream) Tracks() []LocalTrack {
	if s == nil {
		return nil
	}
	out := make([]LocalTrack, 0, 2)
	if s.Audio != nil {
		out = append(out, s.Audio)
	}
	if s.Video != nil {
		out = append(out, s.Video)
	}
	return out
}

func (s *LocalStream) Track(kind domain.MediaKind) LocalTrack {
	if s == nil {
		return nil
	}
	switch kind.Base() {
	case domain.KindAudio:
		return s.Audio
	case domain.KindVideo:
		return s.Video
	}
	return nil
}

func (s *LocalStream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

type MediaConstraints struct {
	Audio  bool
	Video  bool
	Width  int
	Height int
}

// MediaDevices acquires local capture streams.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, c MediaConstraints) (*LocalStream, error)
	GetDisplayMedia(ctx context.Context) (*LocalStream, error)
}

type ProcessorConfig struct {
	Name    string
	Options map[string]any
}

// TrackProcessor transforms a raw capture into a processed stream.
type TrackProcessor interface {
	Start(ctx context.Context) error
	Stop()
	ProcessedStream() *LocalStream
}

type ProcessorFactory interface {
	CreateProcessor(raw *LocalStream, cfg ProcessorConfig) (TrackProcessor, error)
}
