package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/tj/assert"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mcdev12/livepoll/go/internal/models"
	"github.com/mcdev12/livepoll/go/internal/poll/events"
)

// flakyArchive fails the first failures appends
type flakyArchive struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	attempts int
}

func (a *flakyArchive) Append(ctx context.Context, record models.PollRecord) error {
	a.mu.Lock()
	a.attempts++
	fail := a.attempts <= a.failures
	a.mu.Unlock()
	if fail {
		return errors.New("database unavailable")
	}
	return a.MemoryStore.Append(ctx, record)
}

// gatedArchive holds a single append until release is closed
type gatedArchive struct {
	*MemoryStore
	started chan struct{}
	release chan struct{}
}

func (a *gatedArchive) Append(ctx context.Context, record models.PollRecord) error {
	close(a.started)
	select {
	case <-a.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.MemoryStore.Append(ctx, record)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []models.PollRecord
}

func (p *recordingPublisher) Publish(_ context.Context, record models.PollRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, record)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func testWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:     4,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
		AppendTimeout: time.Second,
		DrainTimeout:  time.Second,
	}
}

func runWriter(t *testing.T, w *Writer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func eventually(t *testing.T, cond func() bool) {
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

func TestWriter(t *testing.T) {
	t.Run("retries until append succeeds", func(t *testing.T) {
		archive := &flakyArchive{MemoryStore: NewMemoryStore(), failures: 2}
		publisher := &recordingPublisher{}
		counters := NewCounters()
		w := NewWriter(NewMetricArchive(archive, counters), publisher, counters, clockwork.NewRealClock(), testWriterConfig())
		runWriter(t, w)

		w.Submit(newRecord("flaky", time.Now()))
		eventually(t, func() bool { return counters.Snapshot().Exported == 1 })
		assert.Equal(t, 1, publisher.count())

		records, err := archive.List(context.Background())
		assert.NoError(t, err)
		assert.Len(t, records, 1)

		snap := counters.Snapshot()
		assert.Equal(t, uint64(1), snap.Appended)
		assert.Equal(t, uint64(2), snap.Failed)
		assert.Equal(t, uint64(2), snap.Retries)
		assert.Equal(t, uint64(1), snap.Exported)
	})

	t.Run("gives up and skips export", func(t *testing.T) {
		archive := &flakyArchive{MemoryStore: NewMemoryStore(), failures: 100}
		publisher := &recordingPublisher{}
		counters := NewCounters()
		w := NewWriter(NewMetricArchive(archive, counters), publisher, counters, clockwork.NewRealClock(), testWriterConfig())
		runWriter(t, w)

		w.Submit(newRecord("doomed", time.Now()))
		eventually(t, func() bool { return counters.Snapshot().Failed == 3 })

		assert.Equal(t, 0, publisher.count())
		assert.Equal(t, uint64(0), counters.Snapshot().Appended)
	})

	t.Run("full queue drops instead of blocking", func(t *testing.T) {
		counters := NewCounters()
		cfg := testWriterConfig()
		cfg.QueueSize = 1
		w := NewWriter(NewMemoryStore(), nil, counters, clockwork.NewRealClock(), cfg)

		w.Submit(newRecord("one", time.Now()))
		w.Submit(newRecord("two", time.Now()))
		assert.Equal(t, uint64(1), counters.Snapshot().Dropped)
	})

	t.Run("shutdown drains queued records", func(t *testing.T) {
		store := NewMemoryStore()
		w := NewWriter(store, nil, nil, clockwork.NewRealClock(), testWriterConfig())
		w.Submit(newRecord("queued", time.Now()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.NoError(t, w.Run(ctx))

		records, err := store.List(context.Background())
		assert.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("record in flight at shutdown is still archived", func(t *testing.T) {
		store := &gatedArchive{
			MemoryStore: NewMemoryStore(),
			started:     make(chan struct{}),
			release:     make(chan struct{}),
		}
		w := NewWriter(store, nil, nil, clockwork.NewRealClock(), testWriterConfig())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		w.Submit(newRecord("in flight", time.Now()))
		<-store.started
		cancel()
		time.Sleep(20 * time.Millisecond)
		close(store.release)
		assert.NoError(t, <-done)

		records, err := store.List(context.Background())
		assert.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

// sumOf returns the total of an int64 counter collected by reader
func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	assert.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			assert.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestOTelMetricsRecordsWriterActivity(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	otelMetrics, err := NewOTelMetrics(provider.Meter("test"))
	assert.NoError(t, err)

	archive := &flakyArchive{MemoryStore: NewMemoryStore(), failures: 1}
	publisher := &recordingPublisher{}
	w := NewWriter(NewMetricArchive(archive, otelMetrics), publisher, otelMetrics, clockwork.NewRealClock(), testWriterConfig())
	runWriter(t, w)

	w.Submit(newRecord("measured", time.Now()))
	eventually(t, func() bool { return publisher.count() == 1 })
	eventually(t, func() bool { return sumOf(t, reader, "poll_archive_exports_total") == 1 })

	assert.Equal(t, int64(2), sumOf(t, reader, "poll_archive_appends_total"))
	assert.Equal(t, int64(2), sumOf(t, reader, "poll_archive_append_attempts_total"))
	assert.Equal(t, int64(0), sumOf(t, reader, "poll_archive_dropped_total"))
}

func TestFinalizedMsg(t *testing.T) {
	record := newRecord("export", time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	now := time.Date(2024, 5, 1, 9, 0, 1, 0, time.UTC)

	msg, err := newFinalizedMsg("poll.events", record, now)
	assert.NoError(t, err)
	assert.Equal(t, "poll.events.finalized", msg.Subject)
	assert.Equal(t, record.ID.String(), msg.Header.Get("Event-ID"))
	assert.Equal(t, record.SessionID.String(), msg.Header.Get("Session-ID"))

	var env struct {
		EventID   string               `json:"eventId"`
		EventType string               `json:"eventType"`
		Payload   events.RecordPayload `json:"payload"`
	}
	assert.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, record.ID.String(), env.EventID)
	assert.Equal(t, EventFinalized, env.EventType)
	assert.Equal(t, map[string]int{"A": 1, "B": 1}, env.Payload.Tally)
	assert.Equal(t, int64(60000), env.Payload.Duration)
}

func TestCollectorsFanOut(t *testing.T) {
	otelMetrics, err := NewOTelMetrics(sdkmetric.NewMeterProvider().Meter("test"))
	assert.NoError(t, err)

	first, second := NewCounters(), NewCounters()
	metrics := Collectors{first, otelMetrics, second}

	metrics.RecordAppend(true, time.Millisecond)
	metrics.RecordAppendAttempt(2, true)
	metrics.RecordDropped()
	metrics.RecordExport(false)

	for _, c := range []*Counters{first, second} {
		snapshot := c.Snapshot()
		assert.Equal(t, uint64(1), snapshot.Appended)
		assert.Equal(t, uint64(1), snapshot.Retries)
		assert.Equal(t, uint64(1), snapshot.Dropped)
		assert.Equal(t, uint64(1), snapshot.ExportFailed)
	}
}
