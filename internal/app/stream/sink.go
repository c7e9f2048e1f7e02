package stream

import (
	"sync/atomic"

	"github.com/dkeye/huddle/internal/core"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateMuted
	SinkStateDelete
)

// OutSink is one attached destination of a relay, e.g. a display slot.
type OutSink struct {
	Sink  core.Sink
	state atomic.Int32 // Zero by default (SinkStateOk)
}

func NewOutSink(s core.Sink) *OutSink {
	return &OutSink{Sink: s}
}

func (o *OutSink) GetState() SinkState {
	return SinkState(o.state.Load())
}

// SetMuted toggles between Ok and Muted. A sink marked for deletion stays
// deleted; the result reports whether the state is now the requested one.
func (o *OutSink) SetMuted(muted bool) bool {
	from, to := SinkStateOk, SinkStateMuted
	if !muted {
		from, to = to, from
	}
	for {
		cur := SinkState(o.state.Load())
		switch cur {
		case to:
			return true
		case SinkStateDelete:
			return false
		}
		if o.state.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

func (o *OutSink) MarkDelete() {
	o.state.Store(int32(SinkStateDelete))
}
