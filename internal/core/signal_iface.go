package core

import (
	"context"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
)

// Request names understood by the room server.
const (
	ReqJoinRoom         = "joinRoom"
	ReqRequestTransport = "requestTransport"
	ReqConnectTransport = "connectTransport"
	ReqStartProducing   = "startProducing"
	ReqConsumeMedia     = "consumeMedia"
	ReqUnpauseConsumer  = "unpauseConsumer"
	EmitAudioChange     = "audioChange"
	EmitLeaveRoom       = "leaveRoom"
	EmitCloseProducers  = "closeProducers"
	ReplySuccess        = "success"
	ReplyError          = "error"
	ReplyCannotConsume  = "cannotConsume"
	ReplyConsumeFailed  = "consumeFailed"
)

//go:generate mockgen -source=signal_iface.go -destination=mocks/signal_mock.go -package=mocks

// SignalChannel abstracts the request/acknowledgement connection to the room server.
// Owned by whoever dialed it; that owner must Close() it.
type SignalChannel interface {
	// Request sends event and waits for its reply. It fails with
	// ErrSignalingTimeout when no reply arrives in time and with
	// ErrSignalingRejected when the server answers with an error frame.
	Request(ctx context.Context, event string, payload any) (json.RawMessage, error)
	// Emit sends a fire-and-forget event.
	Emit(event string, payload any) error
	// Events delivers decoded server pushes in arrival order. It is closed
	// when the channel shuts down.
	Events() <-chan domain.Event
	Close() error
}

// SignalDialer opens independent signaling connections. The screen-share
// identity uses its own connection.
type SignalDialer interface {
	Dial(ctx context.Context) (SignalChannel, error)
}

type SignalDialerFunc func(ctx context.Context) (SignalChannel, error)

func (f SignalDialerFunc) Dial(ctx context.Context) (SignalChannel, error) { return f(ctx) }
