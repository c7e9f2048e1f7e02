package core

import (
	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
)

type JoinRequest struct {
	Name   string        `json:"name"`
	RoomID domain.RoomID `json:"roomId"`
}

// JoinReply is the joinRoom acknowledgement.
type JoinReply struct {
	Capabilities        RTPCapabilities          `json:"capabilities"`
	IsNewRoom           bool                     `json:"isNewRoom"`
	AudioIDs            []string                 `json:"audioIdsToCreate"`
	VideoIDs            []string                 `json:"videoIdsToCreate"`
	Participants        []domain.ParticipantInfo `json:"participants"`
	RoomID              domain.RoomID            `json:"roomId"`
	ParticipantID       domain.ParticipantID     `json:"participantId,omitempty"`
	OwnerID             domain.ParticipantID     `json:"ownerId"`
	IsPasswordProtected bool                     `json:"isPasswordProtected"`
	ParticipantCount    int                      `json:"participantCount"`
}

// Announcement returns the producers already present in the room.
func (r JoinReply) Announcement() domain.NewProducers {
	return domain.NewProducers{AudioIDs: r.AudioIDs, VideoIDs: r.VideoIDs, Participants: r.Participants}
}

func (r JoinReply) Snapshot() domain.RoomSnapshot {
	return domain.RoomSnapshot{
		RoomID:              r.RoomID,
		OwnerID:             r.OwnerID,
		IsPasswordProtected: r.IsPasswordProtected,
		IsNewRoom:           r.IsNewRoom,
		Participants:        append([]domain.ParticipantInfo(nil), r.Participants...),
		ParticipantCount:    r.ParticipantCount,
	}
}

type TransportRequest struct {
	Type          domain.TransportDirection `json:"type"`
	RemoteAudioID string                    `json:"remoteAudioId,omitempty"`
}

type ConnectTransportRequest struct {
	DTLSParameters DTLSParameters            `json:"dtlsParams"`
	Type           domain.TransportDirection `json:"type"`
	RemoteAudioID  string                    `json:"remoteAudioId,omitempty"`
}

type ProduceRequest struct {
	Kind          domain.MediaKind `json:"kind"`
	RTPParameters RTPParameters    `json:"rtpParams"`
	AppData       AppData          `json:"appData,omitempty"`
}

type ConsumeRequest struct {
	Capabilities       RTPCapabilities  `json:"capabilities"`
	ParticipantTrackID string           `json:"participantTrackId"`
	Kind               domain.MediaKind `json:"kind"`
}

type UnpauseRequest struct {
	ParticipantTrackID string           `json:"participantTrackId"`
	Kind               domain.MediaKind `json:"kind"`
}

type AudioChange struct {
	Action string `json:"action"`
}

const (
	AudioMute   = "mute"
	AudioUnmute = "unmute"
)

type CloseProducers struct {
	ProducerIDs []string `json:"producerIds"`
}

// ReplyString reports the reply as a bare string, if it is one.
func ReplyString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// ProducerIDFromReply accepts either a bare id or an {"id": ...} object.
func ProducerIDFromReply(raw json.RawMessage) (string, bool) {
	if s, ok := ReplyString(raw); ok {
		if s == "" || s == ReplyError {
			return "", false
		}
		return s, true
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.ID == "" {
		return "", false
	}
	return obj.ID, true
}
