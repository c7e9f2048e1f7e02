// Package signal implements the request/acknowledgement signaling channel
// over a WebSocket connection.
package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var ErrBackpressure = errors.New("backpressure")

const (
	frameRequest  = "request"
	frameResponse = "response"
	framePush     = "push"
	frameEmit     = "emit"
)

type frame struct {
	Type  string          `json:"type"`
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

type Options struct {
	URL            string
	Header         http.Header
	ReadLimit      int64
	PingPeriod     time.Duration
	RequestTimeout time.Duration
	SendBuffer     int
}

// Dialer opens one WebSocket connection per Dial.
type Dialer struct {
	opts Options
	ws   *websocket.Dialer
}

func NewDialer(opts Options) *Dialer {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 32
	}
	return &Dialer{
		opts: opts,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

func (d *Dialer) Dial(ctx context.Context) (core.SignalChannel, error) {
	ws, _, err := d.ws.DialContext(ctx, d.opts.URL, d.opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", d.opts.URL, err)
	}
	log.Info().Str("module", "signal").Str("url", d.opts.URL).Msg("connected")
	return newConn(ws, d.opts), nil
}

type reply struct {
	data json.RawMessage
	err  error
}

// WsSignalConn is a single signaling connection. Requests are correlated
// with replies by id; pushes are decoded and delivered on Events.
type WsSignalConn struct {
	conn   *websocket.Conn
	opts   Options
	send   chan []byte
	events chan domain.Event
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]chan reply
	closed  bool
}

func newConn(ws *websocket.Conn, opts Options) *WsSignalConn {
	c := &WsSignalConn{
		conn:    ws,
		opts:    opts,
		send:    make(chan []byte, opts.SendBuffer),
		events:  make(chan domain.Event, 64),
		done:    make(chan struct{}),
		pending: make(map[string]chan reply),
	}
	go c.writePump()
	go c.readPump()
	return c
}

func (c *WsSignalConn) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	id := uuid.NewString()
	b, err := json.Marshal(frame{Type: frameRequest, ID: id, Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}

	ch := make(chan reply, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, core.ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if c.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RequestTimeout)
		defer cancel()
	}

	select {
	case c.send <- b:
	case <-ctx.Done():
		c.drop(id)
		return nil, fmt.Errorf("%w: %s: %w", core.ErrSignalingTimeout, event, ctx.Err())
	case <-c.done:
		return nil, core.ErrClosed
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.data, nil
	case <-ctx.Done():
		c.drop(id)
		return nil, fmt.Errorf("%w: %s: %w", core.ErrSignalingTimeout, event, ctx.Err())
	}
}

func (c *WsSignalConn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	b, err := json.Marshal(frame{Type: frameEmit, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return c.TrySend(b)
}

// TrySend queues b without blocking.
func (c *WsSignalConn) TrySend(b []byte) error {
	select {
	case <-c.done:
		return core.ErrClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *WsSignalConn) Events() <-chan domain.Event { return c.events }

// Close is idempotent. Pending requests fail with core.ErrClosed and the
// events channel is closed once the read loop exits.
func (c *WsSignalConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan reply)
	close(c.done)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- reply{err: core.ErrClosed}
	}

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}

func (c *WsSignalConn) drop(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *WsSignalConn) resolve(f frame) {
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if !ok {
		log.Debug().Str("module", "signal").Str("id", f.ID).Msg("late or unknown response")
		return
	}
	if f.Error != "" {
		ch <- reply{err: fmt.Errorf("%w: %s", core.ErrSignalingRejected, f.Error)}
		return
	}
	ch <- reply{data: f.Data}
}
