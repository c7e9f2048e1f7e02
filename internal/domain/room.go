package domain

type RoomID string

// RoomSnapshot is the server-confirmed view of the room.
type RoomSnapshot struct {
	RoomID              RoomID            `json:"roomId"`
	OwnerID             ParticipantID     `json:"ownerId"`
	IsPasswordProtected bool              `json:"isPasswordProtected"`
	IsNewRoom           bool              `json:"isNewRoom"`
	Participants        []ParticipantInfo `json:"participants"`
	ParticipantCount    int               `json:"participantCount"`
}

// Clone returns a copy that does not share the participant slice.
func (r RoomSnapshot) Clone() RoomSnapshot {
	out := r
	out.Participants = append([]ParticipantInfo(nil), r.Participants...)
	return out
}
