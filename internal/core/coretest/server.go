package coretest

import (
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
)

// Caps is a minimal opus+VP8 router capability set.
var Caps = core.RTPCapabilities{
	Codecs: []core.RTPCodecCapability{
		{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2, PreferredPayloadType: 100},
		{Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000, PreferredPayloadType: 101},
	},
}

// ServerSignal answers every request the way a healthy room server does.
// Joiners get participant id "pid-<name>" and see existing as already
// published. Producer ids are "prod-<kind>" and consumer ids "c-<producer>".
func ServerSignal(existing domain.NewProducers) *Signal {
	sig := NewSignal()
	sig.Handle(core.ReqJoinRoom, func(p any) (any, error) {
		req := p.(core.JoinRequest)
		return core.JoinReply{
			Capabilities:     Caps,
			RoomID:           req.RoomID,
			ParticipantID:    domain.ParticipantID("pid-" + req.Name),
			AudioIDs:         existing.AudioIDs,
			VideoIDs:         existing.VideoIDs,
			Participants:     existing.Participants,
			ParticipantCount: len(existing.Participants) + 1,
		}, nil
	})
	sig.Handle(core.ReqRequestTransport, func(p any) (any, error) {
		req := p.(core.TransportRequest)
		return core.TransportParams{ID: string(req.Type) + "-" + req.RemoteAudioID}, nil
	})
	sig.Reply(core.ReqConnectTransport, core.ReplySuccess)
	sig.Handle(core.ReqStartProducing, func(p any) (any, error) {
		req := p.(core.ProduceRequest)
		return "prod-" + string(req.Kind), nil
	})
	sig.Handle(core.ReqConsumeMedia, func(p any) (any, error) {
		req := p.(core.ConsumeRequest)
		return core.ConsumerParams{ID: "c-" + req.ParticipantTrackID, ProducerID: req.ParticipantTrackID, Kind: req.Kind}, nil
	})
	sig.Reply(core.ReqUnpauseConsumer, core.ReplySuccess)
	return sig
}

// Participants announces one audio+video pair per id: "a-<id>" and "v-<id>",
// with the id doubling as the display name.
func Participants(ids ...string) domain.NewProducers {
	var ann domain.NewProducers
	for _, id := range ids {
		ann.AudioIDs = append(ann.AudioIDs, "a-"+id)
		ann.VideoIDs = append(ann.VideoIDs, "v-"+id)
		ann.Participants = append(ann.Participants, domain.ParticipantInfo{ID: domain.ParticipantID(id), Name: id})
	}
	return ann
}
