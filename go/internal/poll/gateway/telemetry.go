package gateway

import (
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// TelemetryConfig selects where OpenTelemetry metrics are exported
type TelemetryConfig struct {
	Exporter string // "none" or "stdout"
	Interval time.Duration
	Out      io.Writer
}

func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Exporter: "none",
		Interval: time.Minute,
		Out:      os.Stdout,
	}
}

// NewMeterProvider builds the SDK provider for cfg. It returns nil when
// metrics export is disabled. Callers own Shutdown, which flushes the last
// collection.
func NewMeterProvider(cfg TelemetryConfig) (*sdkmetric.MeterProvider, error) {
	var exporter sdkmetric.Exporter
	switch cfg.Exporter {
	case "", "none":
		return nil, nil
	case "stdout":
		out := cfg.Out
		if out == nil {
			out = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unknown metrics exporter %q", cfg.Exporter)
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "livepoll-gateway"),
		)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
	), nil
}
