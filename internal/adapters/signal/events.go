package signal

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-json"
)

var ErrUnknownEvent = errors.New("unknown event")

// Push event names. Older servers use the aliases.
const (
	EvNewProducers         = "newProducersToConsume"
	EvProducerClosed       = "producerClosed"
	EvProducerPaused       = "producerPaused"
	EvProducerResumed      = "producerResumed"
	EvConsumerPaused       = "consumerPaused"
	EvConsumerResumed      = "consumerResumed"
	EvParticipantLeft      = "participantLeft"
	EvUserLeft             = "userLeft"
	EvUpdateActiveSpeakers = "updateActiveSpeakers"
	EvActiveSpeakersUpdate = "activeSpeakersUpdate"
	EvRoomUpdated          = "roomUpdated"
)

func decodeEvent(name string, data json.RawMessage) (domain.Event, error) {
	switch name {
	case EvNewProducers:
		return decode[domain.NewProducers](data)
	case EvProducerClosed:
		id, err := decodeID(data, "producerId")
		return domain.ProducerClosed{ProducerID: id}, err
	case EvProducerPaused:
		id, err := decodeID(data, "producerId")
		return domain.ProducerPaused{ProducerID: id}, err
	case EvProducerResumed:
		id, err := decodeID(data, "producerId")
		return domain.ProducerResumed{ProducerID: id}, err
	case EvConsumerPaused:
		return decode[domain.ConsumerPaused](data)
	case EvConsumerResumed:
		return decode[domain.ConsumerResumed](data)
	case EvParticipantLeft, EvUserLeft:
		id, err := decodeID(data, "participantId")
		return domain.ParticipantLeft{ParticipantID: domain.ParticipantID(id)}, err
	case EvUpdateActiveSpeakers, EvActiveSpeakersUpdate:
		return decodeSpeakers(data)
	case EvRoomUpdated:
		return decode[domain.RoomUpdated](data)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
}

func decode[T domain.Event](data json.RawMessage) (domain.Event, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// decodeID accepts either a bare JSON string or an object carrying key.
func decodeID(data json.RawMessage, key string) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		err := json.Unmarshal(data, &s)
		return s, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	raw, ok := obj[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	var s string
	err := json.Unmarshal(raw, &s)
	return s, err
}

// decodeSpeakers accepts a bare array or {"speakers": [...]}.
func decodeSpeakers(data json.RawMessage) (domain.Event, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var ids []domain.ParticipantID
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, err
		}
		return domain.ActiveSpeakers{Speakers: ids}, nil
	}
	return decode[domain.ActiveSpeakers](data)
}
