package archive

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics reports archive metrics through an OpenTelemetry meter. The
// gateway installs an SDK provider when a metrics exporter is configured.
type OTelMetrics struct {
	appends        metric.Int64Counter
	appendDuration metric.Float64Histogram
	attempts       metric.Int64Counter
	dropped        metric.Int64Counter
	exports        metric.Int64Counter
}

// NewOTelMetrics creates the instruments on meter, or on the global
// "livepoll-archive" meter when meter is nil.
func NewOTelMetrics(meter metric.Meter) (*OTelMetrics, error) {
	if meter == nil {
		meter = otel.Meter("livepoll-archive")
	}

	var (
		m   OTelMetrics
		err error
	)
	if m.appends, err = meter.Int64Counter("poll_archive_appends_total",
		metric.WithDescription("Poll records appended to the archive")); err != nil {
		return nil, fmt.Errorf("create appends counter: %w", err)
	}
	if m.appendDuration, err = meter.Float64Histogram("poll_archive_append_duration_seconds",
		metric.WithDescription("Duration of archive appends")); err != nil {
		return nil, fmt.Errorf("create append duration histogram: %w", err)
	}
	if m.attempts, err = meter.Int64Counter("poll_archive_append_attempts_total",
		metric.WithDescription("Archive append attempts including retries")); err != nil {
		return nil, fmt.Errorf("create attempts counter: %w", err)
	}
	if m.dropped, err = meter.Int64Counter("poll_archive_dropped_total",
		metric.WithDescription("Poll records dropped because the archive queue was full")); err != nil {
		return nil, fmt.Errorf("create dropped counter: %w", err)
	}
	if m.exports, err = meter.Int64Counter("poll_archive_exports_total",
		metric.WithDescription("Poll records exported to JetStream")); err != nil {
		return nil, fmt.Errorf("create exports counter: %w", err)
	}
	return &m, nil
}

func (m *OTelMetrics) RecordAppend(success bool, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.Bool("success", success))
	m.appends.Add(context.Background(), 1, attrs)
	m.appendDuration.Record(context.Background(), duration.Seconds(), attrs)
}

func (m *OTelMetrics) RecordAppendAttempt(attempt int, success bool) {
	m.attempts.Add(context.Background(), 1, metric.WithAttributes(
		attribute.Int("attempt", attempt),
		attribute.Bool("success", success),
	))
}

func (m *OTelMetrics) RecordDropped() {
	m.dropped.Add(context.Background(), 1)
}

func (m *OTelMetrics) RecordExport(success bool) {
	m.exports.Add(context.Background(), 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// Collectors fans every measurement out to each collector
type Collectors []MetricsCollector

func (c Collectors) RecordAppend(success bool, duration time.Duration) {
	for _, m := range c {
		m.RecordAppend(success, duration)
	}
}

func (c Collectors) RecordAppendAttempt(attempt int, success bool) {
	for _, m := range c {
		m.RecordAppendAttempt(attempt, success)
	}
}

func (c Collectors) RecordDropped() {
	for _, m := range c {
		m.RecordDropped()
	}
}

func (c Collectors) RecordExport(success bool) {
	for _, m := range c {
		m.RecordExport(success)
	}
}
