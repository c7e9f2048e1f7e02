package stream

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// Relay forwards the packets of one remote consumer track to every attached sink.
type Relay struct {
	Src core.RemoteTrack

	muted atomic.Bool
	done  chan struct{}

	mu    sync.RWMutex
	sinks map[string]*OutSink

	cancel context.CancelFunc
}

func NewRelay(src core.RemoteTrack, cancel context.CancelFunc) *Relay {
	return &Relay{
		Src:    src,
		sinks:  make(map[string]*OutSink),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// loop reads RTP packets from the source track until it fails or ctx ends.
func (r *Relay) loop(ctx context.Context, logger *zerolog.Logger) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("relay ctx done, marking all sinks for delete")
			r.markAllDelete()
			return
		default:
		}
		pkt, _, err := r.Src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("relay source ended")
			r.markAllDelete()
			return
		}
		if r.muted.Load() {
			continue
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[string]*OutSink, len(r.sinks))
	maps.Copy(snapshot, r.sinks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for id, o := range snapshot {
		switch o.GetState() {
		case SinkStateDelete:
			dirty = append(dirty, id)
		case SinkStateMuted:
			// attached, not forwarded
		case SinkStateOk:
			if err := o.Sink.WriteRTP(pkt); err != nil {
				logger.Warn().
					Err(err).
					Str("sink", id).
					Msg("relay write RTP error, marking sink as delete")
				o.MarkDelete()
				dirty = append(dirty, id)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range dirty {
		if o, ok := r.sinks[id]; ok && o.GetState() == SinkStateDelete {
			delete(r.sinks, id)
		}
	}
}

func (r *Relay) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.sinks {
		o.MarkDelete()
	}
}

func (r *Relay) AddSink(id string, o *OutSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sinks[id]; ok {
		old.MarkDelete()
	}
	r.sinks[id] = o
}

func (r *Relay) RemoveSink(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.sinks[id]; ok {
		o.MarkDelete()
		delete(r.sinks, id)
	}
}

// SetSinkMuted stops or resumes forwarding to one sink without detaching it.
func (r *Relay) SetSinkMuted(id string, muted bool) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.sinks[id]
	return ok && o.SetMuted(muted)
}

func (r *Relay) SinkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// SetMuted drops packets while the consumer is paused.
func (r *Relay) SetMuted(muted bool) {
	r.muted.Store(muted)
}

func (r *Relay) Muted() bool { return r.muted.Load() }

// Stop cancels the loop. The loop itself exits on the next read once the
// source track is closed by its consumer.
func (r *Relay) Stop() {
	r.markAllDelete()
	if r.cancel != nil {
		r.cancel()
	}
}

// Done is closed when the loop has exited.
func (r *Relay) Done() <-chan struct{} { return r.done }
