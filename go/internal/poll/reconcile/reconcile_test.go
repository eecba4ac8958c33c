package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tj/assert"

	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

func sessionPayload(elapsedMs, durationMs int64) events.SessionPayload {
	serverNow := int64(1_700_000_000_000)
	return events.SessionPayload{
		ID:          "s1",
		Question:    "q",
		StartTime:   serverNow - elapsedMs,
		Duration:    durationMs,
		ServerTime:  serverNow,
		ElapsedMs:   elapsedMs,
		RemainingMs: durationMs - elapsedMs,
	}
}

func TestAnchor(t *testing.T) {
	t.Run("late joiner matches early joiner", func(t *testing.T) {
		// the local clock is 5 minutes off from the server; only elapsed matters
		local := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)

		early := NewAnchor(sessionPayload(0, 60000), local.Add(-10*time.Second))
		late := NewAnchor(sessionPayload(10000, 60000), local)

		assert.Equal(t, 50*time.Second, early.Remaining(local))
		assert.Equal(t, 50*time.Second, late.Remaining(local))
		assert.True(t, early.LocalStart.Equal(late.LocalStart))
	})

	t.Run("never negative", func(t *testing.T) {
		now := time.Now()
		a := NewAnchor(sessionPayload(59000, 60000), now)
		assert.Equal(t, time.Duration(0), a.Remaining(now.Add(5*time.Second)))
		assert.True(t, a.Expired(now.Add(time.Second)))
	})

	t.Run("display seconds round up", func(t *testing.T) {
		assert.Equal(t, 50, Seconds(49*time.Second+time.Millisecond))
		assert.Equal(t, 1, Seconds(time.Millisecond))
		assert.Equal(t, 0, Seconds(0))
	})
}

type ticks struct {
	mu      sync.Mutex
	seen    []int
	expired int
}

func (r *ticks) tick(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, Seconds(d))
}

func (r *ticks) expire() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired++
}

func (r *ticks) snapshot() ([]int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.seen...), r.expired
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCountdown(t *testing.T) {
	t.Run("ticks down to expiry", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rec := &ticks{}
		c := StartCountdown(clock, NewAnchor(sessionPayload(57000, 60000), clock.Now()), rec.tick, rec.expire)

		seen, _ := rec.snapshot()
		assert.Equal(t, []int{3}, seen)

		for want := 2; want >= 0; want-- {
			clock.Advance(time.Second)
			n := 3 - want + 1
			waitFor(t, func() bool {
				seen, _ := rec.snapshot()
				return len(seen) == n
			})
		}

		<-c.Done()
		seen, expired := rec.snapshot()
		assert.Equal(t, []int{3, 2, 1, 0}, seen)
		assert.Equal(t, 1, expired)
	})

	t.Run("already expired on arrival", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rec := &ticks{}
		c := StartCountdown(clock, NewAnchor(sessionPayload(60000, 60000), clock.Now()), rec.tick, rec.expire)
		<-c.Done()
		_, expired := rec.snapshot()
		assert.Equal(t, 1, expired)
	})

	t.Run("stop cancels without expiring", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rec := &ticks{}
		c := StartCountdown(clock, NewAnchor(sessionPayload(0, 60000), clock.Now()), rec.tick, rec.expire)
		c.Stop()
		c.Stop()

		clock.Advance(time.Minute)
		seen, expired := rec.snapshot()
		assert.Equal(t, []int{60}, seen)
		assert.Equal(t, 0, expired)
	})
}

func TestTracker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var mu sync.Mutex
	var expiredSessions []string
	tracker := NewTracker(clock, nil, func(id string) {
		mu.Lock()
		defer mu.Unlock()
		expiredSessions = append(expiredSessions, id)
	})

	_, ok := tracker.Remaining()
	assert.False(t, ok)

	current, err := events.NewEvent(events.EventPollCurrent, sessionPayload(10000, 60000))
	assert.NoError(t, err)
	assert.NoError(t, tracker.Apply(current))

	remaining, ok := tracker.Remaining()
	assert.True(t, ok)
	assert.Equal(t, 50*time.Second, remaining)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(5 * time.Second)
	remaining, ok = tracker.Remaining()
	assert.True(t, ok)
	assert.Equal(t, 45*time.Second, remaining)

	end, err := events.NewEvent(events.EventPollEnd, events.AnswersPayload{})
	assert.NoError(t, err)
	assert.NoError(t, tracker.Apply(end))

	_, ok = tracker.Remaining()
	assert.False(t, ok)

	// termination wins over the local countdown: nothing expires later
	clock.Advance(time.Minute)
	mu.Lock()
	assert.Empty(t, expiredSessions)
	mu.Unlock()
}
