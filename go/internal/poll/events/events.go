package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed payload")
)

// EventType names a message on the poll channel
type EventType string

// Client to server
const (
	EventModeratorJoin      EventType = "moderator:join"
	EventParticipantJoin    EventType = "participant:join"
	EventPollCreate         EventType = "poll:create"
	EventPollAnswer         EventType = "poll:answer"
	EventChatMessage        EventType = "chat:message"
	EventParticipantKick    EventType = "participant:kick"
	EventPollHistoryRequest EventType = "poll:historyRequest"
	EventPollStateRequest   EventType = "poll:stateRequest"
)

// Server to client. chat:message is shared by both directions.
const (
	EventPollCurrent        EventType = "poll:current"
	EventPollNew            EventType = "poll:new"
	EventPollResults        EventType = "poll:results"
	EventPollEnd            EventType = "poll:end"
	EventPresenceUpdate     EventType = "presence:update"
	EventParticipantRemoved EventType = "participant:removed"
	EventPollHistory        EventType = "poll:history"
)

// Event is the envelope for every server to client message
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEvent marshals payload into a new envelope
func NewEvent(eventType EventType, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}, nil
}

// ParseEvent decodes a server envelope
func ParseEvent(raw []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("missing event type: %w", ErrMalformedPayload)
	}
	return &event, nil
}

// ParseEventPayload decodes event data into the payload type for its event name
func ParseEventPayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventPollNew, EventPollCurrent:
		var payload SessionPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventPollResults, EventPollEnd:
		var payload AnswersPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventPresenceUpdate:
		var payload PresencePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventChatMessage:
		var payload ChatMessagePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventParticipantRemoved:
		var payload string
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventPollHistory:
		var payload []RecordPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, event.Type)
	}
}
