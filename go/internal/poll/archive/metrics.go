package archive

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mcdev12/livepoll/go/internal/models"
)

// MetricsCollector defines the interface for collecting archive metrics
type MetricsCollector interface {
	RecordAppend(success bool, duration time.Duration)
	RecordAppendAttempt(attempt int, success bool)
	RecordDropped()
	RecordExport(success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordAppend(success bool, duration time.Duration) {}
func (NoOpMetricsCollector) RecordAppendAttempt(attempt int, success bool)     {}
func (NoOpMetricsCollector) RecordDropped()                                    {}
func (NoOpMetricsCollector) RecordExport(success bool)                         {}

// Counters is an in-process MetricsCollector served on the stats endpoint
type Counters struct {
	appended     atomic.Uint64
	failed       atomic.Uint64
	retries      atomic.Uint64
	dropped      atomic.Uint64
	exported     atomic.Uint64
	exportFailed atomic.Uint64
	lastAppendNs atomic.Int64
}

// CountersSnapshot is a copy of Counters safe to marshal
type CountersSnapshot struct {
	Appended     uint64  `json:"appended"`
	Failed       uint64  `json:"failed"`
	Retries      uint64  `json:"retries"`
	Dropped      uint64  `json:"dropped"`
	Exported     uint64  `json:"exported"`
	ExportFailed uint64  `json:"export_failed"`
	LastAppendMs float64 `json:"last_append_ms"`
}

func NewCounters() *Counters {
	return &Counters{}
}

func (c *Counters) RecordAppend(success bool, duration time.Duration) {
	if success {
		c.appended.Add(1)
	} else {
		c.failed.Add(1)
	}
	c.lastAppendNs.Store(int64(duration))
}

func (c *Counters) RecordAppendAttempt(attempt int, success bool) {
	if attempt > 1 {
		c.retries.Add(1)
	}
}

func (c *Counters) RecordDropped() {
	c.dropped.Add(1)
}

func (c *Counters) RecordExport(success bool) {
	if success {
		c.exported.Add(1)
	} else {
		c.exportFailed.Add(1)
	}
}

func (c *Counters) Snapshot() CountersSnapshot {
	return CountersSnapshot{
		Appended:     c.appended.Load(),
		Failed:       c.failed.Load(),
		Retries:      c.retries.Load(),
		Dropped:      c.dropped.Load(),
		Exported:     c.exported.Load(),
		ExportFailed: c.exportFailed.Load(),
		LastAppendMs: float64(c.lastAppendNs.Load()) / float64(time.Millisecond),
	}
}

// MetricArchive wraps an Archive with metrics collection
type MetricArchive struct {
	Archive
	metrics MetricsCollector
}

func NewMetricArchive(archive Archive, metrics MetricsCollector) *MetricArchive {
	return &MetricArchive{
		Archive: archive,
		metrics: metrics,
	}
}

func (a *MetricArchive) Append(ctx context.Context, record models.PollRecord) error {
	start := time.Now()

	err := a.Archive.Append(ctx, record)

	a.metrics.RecordAppend(err == nil, time.Since(start))
	return err
}
