// Package orch drives the call session: join, local feed, screen share,
// server pushes, active-speaker assignment and hang-up.
package orch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/sourcegraph/conc"
)

var ErrBadJoinRequest = errors.New("name and room are required")

// Pipeline is one configured track transform, e.g. noise suppression.
type Pipeline struct {
	Factory core.ProcessorFactory
	Config  core.ProcessorConfig
}

type Deps struct {
	Dialer    core.SignalDialer
	NewDevice core.DeviceFactory
	Devices   core.MediaDevices
	Presenter core.Presenter
	Policy    app.Policy
	Pipelines []Pipeline
	Clock     clock.Clock
}

type Options struct {
	JoinTimeout       time.Duration
	SpeakerDebounce   time.Duration
	ScreenShareSuffix string
	VideoWidth        int
	VideoHeight       int
}

// connection is everything bound to one primary join.
type connection struct {
	ctx    context.Context
	cancel context.CancelFunc

	sig       core.SignalChannel
	neg       *app.Negotiator
	tm        *app.TransportManager
	producers *app.ProducerRegistry
	consumers *app.ConsumerRegistry
	room      *app.RoomState

	wgMu    sync.Mutex
	wg      conc.WaitGroup
	stopped bool
}

// spawn runs f on the connection's wait group unless the connection is shutting down.
func (c *connection) spawn(f func()) bool {
	c.wgMu.Lock()
	defer c.wgMu.Unlock()
	if c.stopped {
		return false
	}
	c.wg.Go(f)
	return true
}

// wait blocks until every spawned task has returned. No task starts afterwards.
func (c *connection) wait() {
	c.wgMu.Lock()
	c.stopped = true
	c.wgMu.Unlock()
	c.wg.Wait()
}

type Orchestrator struct {
	ctx  context.Context
	deps Deps
	opts Options

	mu          sync.Mutex
	session     domain.Session
	gen         uint64 // bumped on every hang-up
	conn        *connection
	raw         *core.LocalStream
	local       *core.LocalStream
	processors  []core.TrackProcessor
	acquiring   bool
	consuming   int
	initialDone bool
	screenID    domain.ParticipantID
	screenName  string

	speakers    []domain.ParticipantID
	pinned      domain.ParticipantID
	debounce    *clock.Timer
	debounceGen uint64

	assignMu    sync.Mutex
	assignments []core.StreamAssignment
}

func New(ctx context.Context, deps Deps, opts Options) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Policy == nil {
		deps.Policy = app.SlotPolicy{Slots: 4}
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = 15 * time.Second
	}
	if opts.SpeakerDebounce <= 0 {
		opts.SpeakerDebounce = 100 * time.Millisecond
	}
	return &Orchestrator{
		ctx:     ctx,
		deps:    deps,
		opts:    opts,
		session: domain.NewSession(),
	}
}

// State is the read-only snapshot exposed to the UI.
type State struct {
	Session   domain.Session         `json:"session"`
	Room      domain.RoomSnapshot    `json:"room"`
	Speakers  []domain.ParticipantID `json:"speakers"`
	Pinned    domain.ParticipantID   `json:"pinned,omitempty"`
	Bundles   int                    `json:"bundles"`
	Producers int                    `json:"producers"`
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	st := State{
		Session:  o.session,
		Speakers: append([]domain.ParticipantID(nil), o.speakers...),
		Pinned:   o.pinned,
	}
	conn := o.conn
	o.mu.Unlock()

	if conn != nil {
		st.Room = conn.room.Snapshot()
		st.Bundles = conn.consumers.Count()
		st.Producers = conn.producers.Count()
	}
	return st
}

func (o *Orchestrator) Session() domain.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

func (o *Orchestrator) current() *connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conn
}
