package orch

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/core/coretest"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/stretchr/testify/require"
)

const (
	testWait = 2 * time.Second
	testTick = 5 * time.Millisecond
)

var errBoom = errors.New("boom")

type presenter struct {
	mu       sync.Mutex
	presents [][]core.StreamAssignment
	previews []*core.LocalStream
	clears   int
}

func (p *presenter) Present(a []core.StreamAssignment) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presents = append(p.presents, slices.Clone(a))
}

func (p *presenter) ShowLocalPreview(s *core.LocalStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.previews = append(p.previews, s)
}

func (p *presenter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
}

func (p *presenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.presents)
}

func (p *presenter) last() []core.StreamAssignment {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.presents) == 0 {
		return nil
	}
	return p.presents[len(p.presents)-1]
}

func (p *presenter) cleared() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}

type fixture struct {
	dialer  *coretest.Dialer
	devices *coretest.MediaDevices
	pres    *presenter
	clock   *clock.Mock
	o       *Orchestrator

	mu   sync.Mutex
	devs []*coretest.Device
}

func newFixture(t *testing.T, existing domain.NewProducers, pipelines ...Pipeline) *fixture {
	f := &fixture{
		devices: &coretest.MediaDevices{},
		pres:    &presenter{},
		clock:   clock.NewMock(),
	}
	f.dialer = &coretest.Dialer{New: func() *coretest.Signal { return coretest.ServerSignal(existing) }}
	f.o = New(context.Background(), Deps{
		Dialer: f.dialer,
		NewDevice: func() (core.Device, error) {
			d := coretest.NewDevice()
			f.mu.Lock()
			f.devs = append(f.devs, d)
			f.mu.Unlock()
			return d, nil
		},
		Devices:   f.devices,
		Presenter: f.pres,
		Policy:    app.SlotPolicy{Slots: 4},
		Pipelines: pipelines,
		Clock:     f.clock,
	}, Options{ScreenShareSuffix: " (screen)"})
	t.Cleanup(f.o.HangUp)
	return f
}

func (f *fixture) join(t *testing.T) {
	t.Helper()
	require.NoError(t, f.o.Join(t.Context(), "alice", "r1", true, true))
}

func (f *fixture) signal(i int) *coretest.Signal {
	return f.dialer.Dialed()[i]
}

func (f *fixture) device(i int) *coretest.Device {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devs[i]
}

func transportOf(d *coretest.Device, dir domain.TransportDirection) []*coretest.Transport {
	var out []*coretest.Transport
	for _, t := range d.Transports() {
		if t.Direction() == dir {
			out = append(out, t)
		}
	}
	return out
}

func producerOf(t *testing.T, d *coretest.Device, kind domain.MediaKind) *coretest.Producer {
	t.Helper()
	for _, tr := range transportOf(d, domain.DirectionSend) {
		for _, p := range tr.Producers() {
			if p.Kind() == kind {
				return p
			}
		}
	}
	t.Fatalf("no %s producer", kind)
	return nil
}

type processor struct {
	startErr error
	out      *core.LocalStream
	stopped  atomic.Bool
}

func (p *processor) Start(context.Context) error        { return p.startErr }
func (p *processor) Stop()                              { p.stopped.Store(true) }
func (p *processor) ProcessedStream() *core.LocalStream { return p.out }

type processorFactory struct {
	err  error
	proc *processor
}

func (f *processorFactory) CreateProcessor(*core.LocalStream, core.ProcessorConfig) (core.TrackProcessor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.proc, nil
}
