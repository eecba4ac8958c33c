package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies what a connection is allowed to do
type Role string

const (
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
)

// SystemSender is the sender name used for server-generated chat messages
const SystemSender = "System"

// Option is one selectable answer of a poll
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// PollRecord is the immutable snapshot written to the archive once per finalized poll
type PollRecord struct {
	ID        uuid.UUID         `json:"id"`
	SessionID uuid.UUID         `json:"sessionId"`
	Question  string            `json:"question"`
	Options   []Option          `json:"options"`
	Answers   map[string]string `json:"answers"`
	StartTime time.Time         `json:"startTime"`
	EndTime   time.Time         `json:"endTime"`
	Duration  time.Duration     `json:"duration"`
}

// DurationMs returns the configured poll duration in milliseconds
func (r PollRecord) DurationMs() int64 {
	return r.Duration.Milliseconds()
}

// Tally counts answers per option text
func (r PollRecord) Tally() map[string]int {
	counts := make(map[string]int, len(r.Options))
	for _, opt := range r.Options {
		counts[opt.Text] = 0
	}
	for _, answer := range r.Answers {
		counts[answer]++
	}
	return counts
}

// ChatMessage is a transient chat line, broadcast only
type ChatMessage struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsSystem  bool      `json:"isSystem"`
}
