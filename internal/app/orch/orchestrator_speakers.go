package orch

import (
	"slices"

	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// OnActiveSpeakers schedules a reassignment with the latest list. Every update
// replaces the pending timer, so a burst collapses into one pass.
func (o *Orchestrator) OnActiveSpeakers(speakers []domain.ParticipantID) {
	latest := slices.Clone(speakers)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.debounce != nil {
		o.debounce.Stop()
	}
	o.debounceGen++
	gen := o.debounceGen
	o.debounce = o.deps.Clock.AfterFunc(o.opts.SpeakerDebounce, func() {
		o.applySpeakers(gen, latest)
	})
}

func (o *Orchestrator) applySpeakers(gen uint64, speakers []domain.ParticipantID) {
	o.mu.Lock()
	if gen != o.debounceGen || o.conn == nil {
		o.mu.Unlock()
		return
	}
	o.debounce = nil
	o.speakers = speakers
	o.mu.Unlock()

	log.Debug().Str("module", "orch").Int("speakers", len(speakers)).Msg("active speakers applied")
	o.reassign()
}

// Pin keeps pid in the first slot until Unpin or until pid leaves.
func (o *Orchestrator) Pin(pid domain.ParticipantID) []core.StreamAssignment {
	o.mu.Lock()
	o.pinned = pid
	o.mu.Unlock()
	return o.reassign()
}

func (o *Orchestrator) Unpin() []core.StreamAssignment {
	o.mu.Lock()
	o.pinned = ""
	o.mu.Unlock()
	return o.reassign()
}

// RefreshStreams recomputes and re-presents the stream assignment.
func (o *Orchestrator) RefreshStreams() []core.StreamAssignment {
	return o.reassign()
}

func (o *Orchestrator) Assignments() []core.StreamAssignment {
	o.assignMu.Lock()
	defer o.assignMu.Unlock()
	return slices.Clone(o.assignments)
}

func (o *Orchestrator) reassign() []core.StreamAssignment {
	o.assignMu.Lock()
	defer o.assignMu.Unlock()

	o.mu.Lock()
	conn := o.conn
	in := app.AssignInput{
		Speakers:     slices.Clone(o.speakers),
		Pinned:       o.pinned,
		Exclude:      lo.Compact([]domain.ParticipantID{o.session.ParticipantID, o.screenID}),
		ExcludeNames: lo.Compact([]string{o.screenName}),
	}
	o.mu.Unlock()
	if conn == nil {
		return nil
	}

	in.Bundles = conn.consumers.Bundles()
	out := o.deps.Policy.Assign(in)
	o.assignments = out
	o.deps.Presenter.Present(out)
	return slices.Clone(out)
}
