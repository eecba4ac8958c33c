package reconcile

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// Tracker follows the poll lifecycle events a client receives and keeps
// exactly one local countdown running for the live session.
type Tracker struct {
	clock    clockwork.Clock
	onTick   func(sessionID string, remaining time.Duration)
	onExpire func(sessionID string)

	applyMu   sync.Mutex
	mu        sync.Mutex
	countdown *Countdown
}

func NewTracker(clock clockwork.Clock, onTick func(string, time.Duration), onExpire func(string)) *Tracker {
	return &Tracker{clock: clock, onTick: onTick, onExpire: onExpire}
}

// Apply updates the countdown for a received event. poll:new and
// poll:current (re)anchor it; poll:end cancels it immediately.
func (t *Tracker) Apply(event *events.Event) error {
	t.applyMu.Lock()
	defer t.applyMu.Unlock()

	switch event.Type {
	case events.EventPollNew, events.EventPollCurrent:
		payload, err := events.ParseEventPayload(event)
		if err != nil {
			return err
		}
		t.start(NewAnchor(payload.(events.SessionPayload), t.clock.Now()))

	case events.EventPollEnd:
		t.Stop()
	}
	return nil
}

// Remaining returns the local remaining time of the live session
func (t *Tracker) Remaining() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.countdown == nil {
		return 0, false
	}
	anchor := t.countdown.Anchor()
	if anchor.Expired(t.clock.Now()) {
		return 0, false
	}
	return anchor.Remaining(t.clock.Now()), true
}

// Stop cancels any running countdown
func (t *Tracker) Stop() {
	t.mu.Lock()
	countdown := t.countdown
	t.countdown = nil
	t.mu.Unlock()

	if countdown != nil {
		countdown.Stop()
	}
}

func (t *Tracker) start(anchor Anchor) {
	t.Stop()

	log.Debug().
		Str("session_id", anchor.SessionID).
		Dur("remaining", anchor.Remaining(t.clock.Now())).
		Msg("countdown anchored")

	countdown := StartCountdown(t.clock, anchor,
		func(remaining time.Duration) {
			if t.onTick != nil {
				t.onTick(anchor.SessionID, remaining)
			}
		},
		func() {
			if t.onExpire != nil {
				t.onExpire(anchor.SessionID)
			}
		},
	)

	t.mu.Lock()
	t.countdown = countdown
	t.mu.Unlock()
}
