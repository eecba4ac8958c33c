package events

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
)

const maxChatLength = 500

// ClientMessage is the envelope for every client to server message
type ClientMessage struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Command is a validated client request
type Command interface {
	EventType() EventType
}

// JoinCommand registers the connection under a role and display name
type JoinCommand struct {
	Role        models.Role
	DisplayName string
}

func (c JoinCommand) EventType() EventType {
	if c.Role == models.RoleModerator {
		return EventModeratorJoin
	}
	return EventParticipantJoin
}

// CreatePollCommand asks to start a new poll. A zero Duration means use the default.
type CreatePollCommand struct {
	Question string
	Options  []models.Option
	Duration time.Duration
}

func (CreatePollCommand) EventType() EventType { return EventPollCreate }

// AnswerCommand records the caller's choice
type AnswerCommand struct {
	OptionText string
}

func (AnswerCommand) EventType() EventType { return EventPollAnswer }

// ChatCommand sends a chat line
type ChatCommand struct {
	Text string
}

func (ChatCommand) EventType() EventType { return EventChatMessage }

// KickCommand removes a participant by display name
type KickCommand struct {
	DisplayName string
}

func (KickCommand) EventType() EventType { return EventParticipantKick }

// HistoryRequestCommand asks for the archived polls
type HistoryRequestCommand struct{}

func (HistoryRequestCommand) EventType() EventType { return EventPollHistoryRequest }

// StateRequestCommand asks for the current session snapshot and presence
type StateRequestCommand struct{}

func (StateRequestCommand) EventType() EventType { return EventPollStateRequest }

type joinPayload struct {
	DisplayName string `json:"displayName"`
}

type createPollPayload struct {
	Question   string          `json:"question"`
	Options    []models.Option `json:"options"`
	DurationMs int64           `json:"durationMs"`
}

// ParseClientMessage decodes and validates a raw client message
func ParseClientMessage(raw []byte) (Command, error) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal client message: %w", ErrMalformedPayload)
	}

	switch msg.Type {
	case EventModeratorJoin, EventParticipantJoin:
		var payload joinPayload
		if err := decode(msg.Data, &payload); err != nil {
			return nil, err
		}
		name := strings.TrimSpace(payload.DisplayName)
		if name == "" {
			return nil, fmt.Errorf("displayName is required: %w", ErrMalformedPayload)
		}
		role := models.RoleParticipant
		if msg.Type == EventModeratorJoin {
			role = models.RoleModerator
		}
		return JoinCommand{Role: role, DisplayName: name}, nil

	case EventPollCreate:
		var payload createPollPayload
		if err := decode(msg.Data, &payload); err != nil {
			return nil, err
		}
		return newCreatePollCommand(payload)

	case EventPollAnswer:
		text, err := decodeText(msg.Data)
		if err != nil {
			return nil, err
		}
		return AnswerCommand{OptionText: text}, nil

	case EventChatMessage:
		text, err := decodeText(msg.Data)
		if err != nil {
			return nil, err
		}
		if runes := []rune(text); len(runes) > maxChatLength {
			text = string(runes[:maxChatLength])
		}
		return ChatCommand{Text: text}, nil

	case EventParticipantKick:
		name, err := decodeText(msg.Data)
		if err != nil {
			return nil, err
		}
		return KickCommand{DisplayName: name}, nil

	case EventPollHistoryRequest:
		return HistoryRequestCommand{}, nil

	case EventPollStateRequest:
		return StateRequestCommand{}, nil

	case "":
		return nil, fmt.Errorf("missing message type: %w", ErrMalformedPayload)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, msg.Type)
	}
}

func newCreatePollCommand(payload createPollPayload) (Command, error) {
	question := strings.TrimSpace(payload.Question)
	if question == "" {
		return nil, fmt.Errorf("question is required: %w", ErrMalformedPayload)
	}

	seen := make(map[string]bool, len(payload.Options))
	options := make([]models.Option, 0, len(payload.Options))
	for _, opt := range payload.Options {
		text := strings.TrimSpace(opt.Text)
		if text == "" {
			continue
		}
		if seen[text] {
			return nil, fmt.Errorf("duplicate option %q: %w", text, ErrMalformedPayload)
		}
		seen[text] = true
		options = append(options, models.Option{Text: text, IsCorrect: opt.IsCorrect})
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("options are required: %w", ErrMalformedPayload)
	}

	if payload.DurationMs > math.MaxInt64/int64(time.Millisecond) {
		return nil, fmt.Errorf("durationMs %d out of range: %w", payload.DurationMs, ErrMalformedPayload)
	}
	var duration time.Duration
	if payload.DurationMs > 0 {
		duration = time.Duration(payload.DurationMs) * time.Millisecond
	}

	return CreatePollCommand{
		Question: question,
		Options:  options,
		Duration: duration,
	}, nil
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("missing data: %w", ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%v: %w", err, ErrMalformedPayload)
	}
	return nil
}

func decodeText(data json.RawMessage) (string, error) {
	var text string
	if err := decode(data, &text); err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("empty text: %w", ErrMalformedPayload)
	}
	return text, nil
}

// NewClientMessage encodes a client message. A nil payload sends no data.
func NewClientMessage(eventType EventType, payload interface{}) ([]byte, error) {
	msg := ClientMessage{Type: eventType}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

// JoinPayload builds the data for moderator:join and participant:join
func JoinPayload(displayName string) interface{} {
	return joinPayload{DisplayName: displayName}
}

// CreatePollPayload builds the data for poll:create
func CreatePollPayload(question string, options []models.Option, duration time.Duration) interface{} {
	return createPollPayload{
		Question:   question,
		Options:    options,
		DurationMs: duration.Milliseconds(),
	}
}
