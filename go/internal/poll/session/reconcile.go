package session

import (
	"time"

	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// Snapshot renders the session for the wire as seen at now. StartTime is the
// adjusted start (now - elapsed) so a receiver can anchor the countdown on
// its own clock: localStart = receipt - ElapsedMs.
func (s *Session) Snapshot(now time.Time) events.SessionPayload {
	elapsed := s.Elapsed(now)
	return events.SessionPayload{
		ID:          s.ID.String(),
		Question:    s.Question,
		Options:     s.Options,
		Answers:     s.answersSnapshot(),
		StartTime:   now.Add(-elapsed).UnixMilli(),
		Duration:    s.Duration.Milliseconds(),
		ServerTime:  now.UnixMilli(),
		ElapsedMs:   elapsed.Milliseconds(),
		RemainingMs: (s.Duration - elapsed).Milliseconds(),
	}
}

// CurrentSnapshot returns the reconciliation view of the live session.
// It reports false when no session is accepting answers.
func (m *Machine) CurrentSnapshot() (events.SessionPayload, bool) {
	s := m.current
	if s == nil {
		return events.SessionPayload{}, false
	}
	now := m.clock.Now()
	if !s.Accepting(now) {
		return events.SessionPayload{}, false
	}
	return s.Snapshot(now), true
}
