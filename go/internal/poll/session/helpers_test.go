package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/tj/assert"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

type delivery struct {
	target string // empty for broadcasts
	event  *events.Event
}

type recorder struct {
	mu   sync.Mutex
	sent []delivery
}

func (r *recorder) Broadcast(event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, delivery{event: event})
}

func (r *recorder) SendTo(connectionID string, event *events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, delivery{target: connectionID, event: event})
}

func (r *recorder) broadcasts(eventType events.EventType) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, d := range r.sent {
		if d.target == "" && d.event.Type == eventType {
			out = append(out, d.event)
		}
	}
	return out
}

func (r *recorder) targeted(connectionID string, eventType events.EventType) []*events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*events.Event
	for _, d := range r.sent {
		if d.target == connectionID && d.event.Type == eventType {
			out = append(out, d.event)
		}
	}
	return out
}

// targetsOf lists every connection that received a targeted eventType
func (r *recorder) targetsOf(eventType events.EventType) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, d := range r.sent {
		if d.target != "" && d.event.Type == eventType {
			out = append(out, d.target)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = nil
}

type recordWriter struct {
	mu      sync.Mutex
	records []models.PollRecord
}

func (w *recordWriter) Submit(record models.PollRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, record)
}

func (w *recordWriter) all() []models.PollRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.PollRecord, len(w.records))
	copy(out, w.records)
	return out
}

type staticHistory []models.PollRecord

func (h staticHistory) List(context.Context) ([]models.PollRecord, error) {
	return h, nil
}

func noTimer(uuid.UUID, time.Duration) *closeTimer { return nil }

func decode[T any](t *testing.T, event *events.Event) T {
	t.Helper()
	var v T
	assert.NoError(t, json.Unmarshal(event.Data, &v))
	return v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startCore(t *testing.T, history HistoryReader) (*Core, *clockwork.FakeClock, *recorder, *recordWriter) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	out := &recorder{}
	writer := &recordWriter{}
	core := NewCore(clock, DefaultConfig(), out, writer, history)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = core.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return core, clock, out, writer
}

func dispatch(t *testing.T, core *Core, connectionID string, cmd events.Command) {
	t.Helper()
	assert.NoError(t, core.Dispatch(context.Background(), connectionID, cmd))
}

func twoOptions() []models.Option {
	return []models.Option{{Text: "A", IsCorrect: true}, {Text: "B"}}
}
