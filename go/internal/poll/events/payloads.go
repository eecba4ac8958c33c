package events

import (
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// SessionPayload is the full session sent on poll:new and poll:current.
// Times are Unix milliseconds.
type SessionPayload struct {
	ID          string            `json:"id"`
	Question    string            `json:"question"`
	Options     []models.Option   `json:"options"`
	Answers     map[string]string `json:"answers"`
	StartTime   int64             `json:"startTime"`
	Duration    int64             `json:"duration"`
	ServerTime  int64             `json:"serverTime"`
	ElapsedMs   int64             `json:"elapsedMs"`
	RemainingMs int64             `json:"remainingMs"`
}

// AnswersPayload maps participant display name to chosen option text
type AnswersPayload map[string]string

// PresencePayload lists connected participant names in join order
type PresencePayload []string

// ChatMessagePayload is a chat line on the wire
type ChatMessagePayload struct {
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	IsSystem  bool   `json:"isSystem"`
}

// NewChatMessagePayload converts a chat message to its wire form
func NewChatMessagePayload(msg models.ChatMessage) ChatMessagePayload {
	return ChatMessagePayload{
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp.UnixMilli(),
		IsSystem:  msg.IsSystem,
	}
}

// RecordPayload is an archived poll on the wire
type RecordPayload struct {
	ID        string            `json:"id"`
	Question  string            `json:"question"`
	Options   []models.Option   `json:"options"`
	Answers   map[string]string `json:"answers"`
	Tally     map[string]int    `json:"tally"`
	StartTime int64             `json:"startTime"`
	EndTime   int64             `json:"endTime"`
	Duration  int64             `json:"duration"`
}

// NewRecordPayload converts an archive record to its wire form
func NewRecordPayload(record models.PollRecord) RecordPayload {
	answers := record.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	return RecordPayload{
		ID:        record.ID.String(),
		Question:  record.Question,
		Options:   record.Options,
		Answers:   answers,
		Tally:     record.Tally(),
		StartTime: record.StartTime.UnixMilli(),
		EndTime:   record.EndTime.UnixMilli(),
		Duration:  record.DurationMs(),
	}
}

// NewRecordPayloads converts archive records, keeping their order
func NewRecordPayloads(records []models.PollRecord) []RecordPayload {
	payloads := make([]RecordPayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, NewRecordPayload(record))
	}
	return payloads
}

// FromUnixMilli converts a wire timestamp back to a time
func FromUnixMilli(ms int64) time.Time {
	return time.UnixMilli(ms)
}
