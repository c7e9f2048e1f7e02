package domain

// Event is a server push. The set of variants is closed: every variant
// implements the unexported marker so that ingestion can switch exhaustively.
type Event interface {
	event()
}

// NewProducers announces remote producers to consume. The three slices are
// parallel; VideoIDs[i] is empty when that participant has no video.
type NewProducers struct {
	AudioIDs     []string          `json:"audioIdsToCreate"`
	VideoIDs     []string          `json:"videoIdsToCreate"`
	Participants []ParticipantInfo `json:"participants"`
}

type ProducerClosed struct {
	ProducerID string `json:"producerId"`
}

type ProducerPaused struct {
	ProducerID string `json:"producerId"`
}

type ProducerResumed struct {
	ProducerID string `json:"producerId"`
}

type ConsumerPaused struct {
	ConsumerID string    `json:"consumerId"`
	Kind       MediaKind `json:"kind"`
}

type ConsumerResumed struct {
	ConsumerID string    `json:"consumerId"`
	Kind       MediaKind `json:"kind"`
}

type ParticipantLeft struct {
	ParticipantID ParticipantID `json:"participantId"`
}

type ActiveSpeakers struct {
	Speakers []ParticipantID `json:"speakers"`
}

// RoomUpdated refreshes room-level metadata without touching media.
type RoomUpdated struct {
	OwnerID             ParticipantID     `json:"ownerId"`
	IsPasswordProtected bool              `json:"isPasswordProtected"`
	Participants        []ParticipantInfo `json:"participants"`
}

func (NewProducers) event()    {}
func (ProducerClosed) event()  {}
func (ProducerPaused) event()  {}
func (ProducerResumed) event() {}
func (ConsumerPaused) event()  {}
func (ConsumerResumed) event() {}
func (ParticipantLeft) event() {}
func (ActiveSpeakers) event()  {}
func (RoomUpdated) event()     {}

// Len reports the number of announced participants, bounded by the shortest
// of the parallel slices that must be present.
func (n NewProducers) Len() int {
	l := len(n.AudioIDs)
	if len(n.Participants) < l {
		l = len(n.Participants)
	}
	return l
}

// VideoID returns the i-th video id, or "" when absent.
func (n NewProducers) VideoID(i int) string {
	if i < len(n.VideoIDs) {
		return n.VideoIDs[i]
	}
	return ""
}
