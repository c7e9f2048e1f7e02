// Package coretest provides scriptable in-memory fakes of the core interfaces.
package coretest

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
)

// Handler answers one request. The returned value is JSON encoded.
type Handler func(payload any) (any, error)

type Call struct {
	Event   string
	Payload any
}

// Signal is a fake core.SignalChannel driven by per-event handlers.
type Signal struct {
	mu       sync.Mutex
	handlers map[string]Handler
	requests []Call
	emits    []Call
	events   chan domain.Event
	closed   bool
}

func NewSignal() *Signal {
	return &Signal{
		handlers: make(map[string]Handler),
		events:   make(chan domain.Event, 64),
	}
}

func (s *Signal) Handle(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = h
}

// Reply registers a handler that always answers v.
func (s *Signal) Reply(event string, v any) {
	s.Handle(event, func(any) (any, error) { return v, nil })
}

func (s *Signal) Request(ctx context.Context, event string, payload any) (json.RawMessage, error) {
	s.mu.Lock()
	s.requests = append(s.requests, Call{Event: event, Payload: payload})
	h, ok := s.handlers[event]
	closed := s.closed
	s.mu.Unlock()

	if closed {
		return nil, core.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrSignalingTimeout, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s", core.ErrSignalingRejected, event)
	}
	v, err := h(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (s *Signal) Emit(event string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrClosed
	}
	s.emits = append(s.emits, Call{Event: event, Payload: payload})
	return nil
}

func (s *Signal) Events() <-chan domain.Event { return s.events }

// Push delivers a server push to the consumer of Events.
func (s *Signal) Push(e domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- e
	}
}

func (s *Signal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *Signal) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Requests returns the payloads sent for event, in order.
func (s *Signal) Requests(event string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter(s.requests, event)
}

func (s *Signal) Emitted(event string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter(s.emits, event)
}

func filter(calls []Call, event string) []any {
	var out []any
	for _, c := range calls {
		if c.Event == event {
			out = append(out, c.Payload)
		}
	}
	return out
}

// Dialer hands out fake signals in order and records how many were dialed.
type Dialer struct {
	mu     sync.Mutex
	New    func() *Signal
	Err    error
	dialed []*Signal
}

func (d *Dialer) Dial(ctx context.Context) (core.SignalChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	s := d.New()
	d.dialed = append(d.dialed, s)
	return s, nil
}

func (d *Dialer) Dialed() []*Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Signal(nil), d.dialed...)
}
