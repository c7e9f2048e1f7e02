package domain

type MediaKind string

const (
	KindAudio       MediaKind = "audio"
	KindVideo       MediaKind = "video"
	KindScreenAudio MediaKind = "screenAudio"
	KindScreenVideo MediaKind = "screenVideo"
)

// Base maps screen variants back to the plain media kind.
func (k MediaKind) Base() MediaKind {
	switch k {
	case KindScreenAudio:
		return KindAudio
	case KindScreenVideo:
		return KindVideo
	default:
		return k
	}
}

func (k MediaKind) Screen() MediaKind {
	switch k {
	case KindAudio:
		return KindScreenAudio
	case KindVideo:
		return KindScreenVideo
	default:
		return k
	}
}

func (k MediaKind) IsScreen() bool {
	return k == KindScreenAudio || k == KindScreenVideo
}

// TransportDirection is the wire value of requestTransport.type.
type TransportDirection string

const (
	DirectionSend TransportDirection = "producer"
	DirectionRecv TransportDirection = "consumer"
)
