package orch

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
)

// HangUp leaves the room and releases every resource. The session returns to idle.
func (o *Orchestrator) HangUp() {
	o.hangUp(true)
}

func (o *Orchestrator) hangUp(notify bool) {
	o.mu.Lock()
	if o.session.Phase == domain.PhaseIdle && o.conn == nil && o.local == nil && !o.acquiring {
		o.mu.Unlock()
		return
	}
	o.session.Phase = domain.PhaseLeaving
	if o.debounce != nil {
		o.debounce.Stop()
		o.debounce = nil
	}
	o.debounceGen++
	o.gen++
	conn := o.conn
	raw, local, procs := o.raw, o.local, o.processors
	o.conn, o.raw, o.local, o.processors = nil, nil, nil, nil
	o.speakers, o.pinned = nil, ""
	o.consuming, o.initialDone = 0, false
	o.screenID, o.screenName = "", ""
	o.mu.Unlock()

	if conn != nil {
		conn.producers.StopScreenShare()
		conn.producers.Cleanup()
		conn.consumers.Cleanup()
		conn.tm.Close()
		conn.cancel()
		conn.wait()
	}
	stopLocal(local, raw, procs)

	o.assignMu.Lock()
	o.assignments = nil
	o.assignMu.Unlock()
	o.deps.Presenter.Clear()

	if conn != nil {
		if notify {
			if err := conn.sig.Emit(core.EmitLeaveRoom, nil); err != nil {
				log.Warn().Err(err).Str("module", "orch").Msg("leaveRoom emit failed")
			}
		}
		_ = conn.sig.Close()
	}

	o.mu.Lock()
	o.session = domain.NewSession()
	o.mu.Unlock()
	log.Info().Str("module", "orch").Bool("notified", notify).Msg("left room")
}
