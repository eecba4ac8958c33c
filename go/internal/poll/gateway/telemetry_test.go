package gateway

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/tj/assert"

	"github.com/mcdev12/livepoll/go/internal/poll/archive"
)

func TestNewMeterProvider(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		provider, err := NewMeterProvider(TelemetryConfig{Exporter: "none"})
		assert.NoError(t, err)
		assert.Nil(t, provider)
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := NewMeterProvider(TelemetryConfig{Exporter: "carrier-pigeon"})
		assert.Error(t, err)
	})

	t.Run("stdout flushes on shutdown", func(t *testing.T) {
		var out bytes.Buffer
		provider, err := NewMeterProvider(TelemetryConfig{Exporter: "stdout", Interval: time.Hour, Out: &out})
		assert.NoError(t, err)
		assert.NotNil(t, provider)

		metrics, err := archive.NewOTelMetrics(provider.Meter("test"))
		assert.NoError(t, err)
		metrics.RecordAppend(true, 5*time.Millisecond)
		metrics.RecordDropped()

		assert.NoError(t, provider.Shutdown(context.Background()))
		assert.Contains(t, out.String(), "poll_archive_appends_total")
		assert.Contains(t, out.String(), "poll_archive_dropped_total")
		assert.Contains(t, out.String(), "livepoll-gateway")
	})
}
