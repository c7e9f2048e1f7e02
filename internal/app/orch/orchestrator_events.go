package orch

import (
	"fmt"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// run ingests server pushes of conn in delivery order until its channel closes.
func (o *Orchestrator) run(conn *connection) {
	for e := range conn.sig.Events() {
		if o.current() != conn {
			continue
		}
		o.handleEvent(conn, e)
	}
	if o.current() == conn {
		log.Warn().Str("module", "orch").Msg("signaling lost, leaving")
		o.hangUp(false)
	}
}

func (o *Orchestrator) handleEvent(conn *connection, e domain.Event) {
	logger := log.With().Str("module", "orch").Str("event", fmt.Sprintf("%T", e)).Logger()
	switch ev := e.(type) {
	case domain.NewProducers:
		conn.spawn(func() { o.consume(conn, ev, false) })
	case domain.ProducerClosed:
		if conn.consumers.HandleProducerClosed(ev.ProducerID) {
			o.reassign()
		}
	case domain.ProducerPaused:
		conn.consumers.HandleProducerPaused(ev.ProducerID)
	case domain.ProducerResumed:
		conn.consumers.HandleProducerResumed(ev.ProducerID)
	case domain.ConsumerPaused:
		conn.consumers.HandleConsumerPaused(ev.ConsumerID, ev.Kind)
	case domain.ConsumerResumed:
		conn.consumers.HandleConsumerResumed(ev.ConsumerID, ev.Kind)
	case domain.ParticipantLeft:
		o.participantLeft(conn, ev.ParticipantID)
	case domain.ActiveSpeakers:
		o.OnActiveSpeakers(ev.Speakers)
	case domain.RoomUpdated:
		conn.room.Update(ev)
	default:
		logger.Warn().Msg("unhandled event")
	}
}

// consume creates bundles for an announcement. initial marks the join-time pass
// that gates RemoteMediaReady.
func (o *Orchestrator) consume(conn *connection, ann domain.NewProducers, initial bool) {
	o.mu.Lock()
	if o.conn != conn {
		o.mu.Unlock()
		return
	}
	if !initial {
		o.consuming++
	}
	self := lo.Compact([]domain.ParticipantID{o.session.ParticipantID, o.screenID})
	selfNames := lo.Compact([]string{o.screenName, domain.ScreenShareName(o.session.DisplayName, o.opts.ScreenShareSuffix)})
	o.mu.Unlock()

	ann = withoutSelf(ann, self, selfNames)
	added := conn.consumers.Consume(conn.ctx, ann)
	conn.room.AddParticipants(added...)

	o.mu.Lock()
	if o.conn != conn {
		o.mu.Unlock()
		return
	}
	o.consuming--
	if initial {
		o.initialDone = true
	}
	o.session.RemoteMediaReady = o.initialDone && o.consuming == 0
	o.mu.Unlock()

	if len(added) > 0 || initial {
		o.reassign()
	}
}

// withoutSelf drops the local participant and its screen-share identity.
func withoutSelf(ann domain.NewProducers, ids []domain.ParticipantID, names []string) domain.NewProducers {
	var out domain.NewProducers
	for i := 0; i < ann.Len(); i++ {
		p := ann.Participants[i]
		if lo.Contains(ids, p.ID) || lo.Contains(names, p.Name) {
			continue
		}
		out.AudioIDs = append(out.AudioIDs, ann.AudioIDs[i])
		out.VideoIDs = append(out.VideoIDs, ann.VideoID(i))
		out.Participants = append(out.Participants, p)
	}
	return out
}

func (o *Orchestrator) participantLeft(conn *connection, pid domain.ParticipantID) {
	conn.consumers.HandleParticipantLeft(pid)
	conn.room.RemoveParticipant(pid)

	o.mu.Lock()
	if o.pinned == pid {
		o.pinned = ""
	}
	o.mu.Unlock()
	o.reassign()
}
