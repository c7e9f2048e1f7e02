package domain

type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseJoining      Phase = "joining"
	PhaseJoined       Phase = "joined"
	PhaseMediaEnabled Phase = "media-enabled"
	PhaseMediaSent    Phase = "media-sent"
	PhaseLeaving      Phase = "leaving"
)

// Session is the local participant's call state.
type Session struct {
	Phase            Phase         `json:"phase"`
	RoomID           RoomID        `json:"roomId,omitempty"`
	ParticipantID    ParticipantID `json:"participantId,omitempty"`
	DisplayName      string        `json:"displayName,omitempty"`
	AudioEnabled     bool          `json:"audioEnabled"`
	VideoEnabled     bool          `json:"videoEnabled"`
	ScreenSharing    bool          `json:"screenSharing"`
	RemoteMediaReady bool          `json:"remoteMediaReady"`
}

func NewSession() Session {
	return Session{Phase: PhaseIdle}
}

// Joined reports whether the session holds a room membership.
func (s Session) Joined() bool {
	switch s.Phase {
	case PhaseJoined, PhaseMediaEnabled, PhaseMediaSent:
		return true
	}
	return false
}
