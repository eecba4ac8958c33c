package reconcile

import (
	"time"

	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// Anchor pins a poll's countdown to the local clock. Only the server's
// elapsed offset is trusted, never its wall clock, so client and server
// skew stays a constant bias instead of a growing error.
type Anchor struct {
	SessionID  string
	LocalStart time.Time
	Duration   time.Duration
}

// NewAnchor re-anchors a session payload at the local instant it was received
func NewAnchor(payload events.SessionPayload, receivedAt time.Time) Anchor {
	elapsed := time.Duration(payload.ElapsedMs) * time.Millisecond
	return Anchor{
		SessionID:  payload.ID,
		LocalStart: receivedAt.Add(-elapsed),
		Duration:   time.Duration(payload.Duration) * time.Millisecond,
	}
}

// Remaining is the time left at now, never negative
func (a Anchor) Remaining(now time.Time) time.Duration {
	remaining := a.Duration - now.Sub(a.LocalStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Expired reports whether the local countdown has run out
func (a Anchor) Expired(now time.Time) bool {
	return a.Remaining(now) == 0
}

// Seconds rounds remaining time up to whole seconds for display
func Seconds(remaining time.Duration) int {
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Second - 1) / time.Second)
}
