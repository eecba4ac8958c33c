package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// State is the lifecycle position of the poll session machine
type State int

const (
	StateIdle State = iota
	StateActive
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Session is the single live poll. ID is the version token timer callbacks
// carry so a fire meant for an older poll can be recognized and ignored.
type Session struct {
	ID        uuid.UUID
	Question  string
	Options   []models.Option
	Answers   map[string]string
	StartTime time.Time
	Duration  time.Duration

	state State
	timer *closeTimer
}

// Elapsed is the time since the session started, clamped to [0, Duration]
func (s *Session) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(s.StartTime)
	if elapsed < 0 {
		return 0
	}
	if elapsed > s.Duration {
		return s.Duration
	}
	return elapsed
}

// Accepting reports whether answers may still be recorded at now
func (s *Session) Accepting(now time.Time) bool {
	return s.state == StateActive && now.Sub(s.StartTime) < s.Duration
}

// HasOption reports whether text names one of the session's options
func (s *Session) HasOption(text string) bool {
	for _, opt := range s.Options {
		if opt.Text == text {
			return true
		}
	}
	return false
}

func (s *Session) answersSnapshot() map[string]string {
	answers := make(map[string]string, len(s.Answers))
	for name, text := range s.Answers {
		answers[name] = text
	}
	return answers
}

// closeTimer is a one-shot cancellable handle around a clock timer.
// Cancel does not wait for the timer goroutine, so a fire racing Cancel can
// still be posted. Machine.OnTimer drops it by session ID.
type closeTimer struct {
	timer  clockwork.Timer
	cancel chan struct{}
	once   sync.Once
}

func armCloseTimer(ctx context.Context, clock clockwork.Clock, d time.Duration, fire func()) *closeTimer {
	ct := &closeTimer{
		timer:  clock.NewTimer(d),
		cancel: make(chan struct{}),
	}

	go func() {
		select {
		case <-ct.timer.Chan():
			select {
			case <-ct.cancel:
				return
			default:
			}
			fire()
		case <-ct.cancel:
		case <-ctx.Done():
			stopAndDrainTimer(ct.timer)
		}
	}()

	return ct
}

// Cancel stops the timer. Safe to call more than once and on a nil handle.
func (ct *closeTimer) Cancel() {
	if ct == nil {
		return
	}
	ct.once.Do(func() {
		close(ct.cancel)
		stopAndDrainTimer(ct.timer)
	})
}

func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
