// Package observe provides application-wide observability primitives for
// keyline: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
//
// Playback-specific instruments live with the player in pkg/playback; this
// package covers the host process around it.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all keyline metrics.
const meterName = "github.com/MrWong99/keyline"

// Metrics holds the host-level metric instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	meter metric.Meter

	// ExportDuration tracks how long an offline render takes.
	ExportDuration metric.Float64Histogram

	// ExportedFrames counts video frames rendered by export runs.
	ExportedFrames metric.Int64Counter

	// ConfigReloads counts configuration reload attempts. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	ConfigReloads metric.Int64Counter

	// InterpolationErrors counts keyframe evaluations that failed. Use with
	// attribute:
	//   attribute.String("logic", ...)
	InterpolationErrors metric.Int64Counter

	// OutputRestarts counts output sink restarts after failures. Use with
	// attribute:
	//   attribute.String("device", ...)
	OutputRestarts metric.Int64Counter

	// MonitorListeners tracks connected monitor listeners.
	MonitorListeners metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// matched route and status code.
	HTTPRequestDuration metric.Float64Histogram
}

// exportBuckets defines histogram bucket boundaries (in seconds) for offline
// renders.
var exportBuckets = []float64{
	0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.ExportDuration, err = m.Float64Histogram("keyline.export.duration",
		metric.WithDescription("Wall time of an offline render."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(exportBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExportedFrames, err = m.Int64Counter("keyline.export.frames",
		metric.WithDescription("Video frames rendered by offline exports."),
	); err != nil {
		return nil, err
	}
	if met.ConfigReloads, err = m.Int64Counter("keyline.config.reloads",
		metric.WithDescription("Configuration reloads by status."),
	); err != nil {
		return nil, err
	}
	if met.InterpolationErrors, err = m.Int64Counter("keyline.interp.errors",
		metric.WithDescription("Failed keyframe evaluations by logic."),
	); err != nil {
		return nil, err
	}
	if met.OutputRestarts, err = m.Int64Counter("keyline.output.restarts",
		metric.WithDescription("Output sink restarts after failures."),
	); err != nil {
		return nil, err
	}
	if met.MonitorListeners, err = m.Int64UpDownCounter("keyline.monitor.listeners",
		metric.WithDescription("Number of connected monitor listeners."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("keyline.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// DeviceStats reports cumulative output device counters.
type DeviceStats func() (framesPlayed, underruns int64)

// ObserveDevice registers asynchronous counters that poll stats on every
// collection. The returned function unregisters them.
func (m *Metrics) ObserveDevice(name string, stats DeviceStats) (func() error, error) {
	frames, err := m.meter.Int64ObservableCounter("keyline.device.frames",
		metric.WithDescription("Sample frames handed to the output device."),
	)
	if err != nil {
		return nil, err
	}
	underruns, err := m.meter.Int64ObservableCounter("keyline.device.underruns",
		metric.WithDescription("Device periods padded with silence."),
	)
	if err != nil {
		return nil, err
	}
	attrs := metric.WithAttributes(attribute.String("device", name))
	reg, err := m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		f, u := stats()
		o.ObserveInt64(frames, f, attrs)
		o.ObserveInt64(underruns, u, attrs)
		return nil
	}, frames, underruns)
	if err != nil {
		return nil, err
	}
	return reg.Unregister, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordConfigReload records a reload attempt.
func (m *Metrics) RecordConfigReload(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ConfigReloads.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordInterpolationError records a failed evaluation of the named logic.
func (m *Metrics) RecordInterpolationError(ctx context.Context, logic string) {
	m.InterpolationErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("logic", logic)),
	)
}

// RecordExport records one completed export run.
func (m *Metrics) RecordExport(ctx context.Context, seconds float64, frames int64) {
	m.ExportDuration.Record(ctx, seconds)
	m.ExportedFrames.Add(ctx, frames)
}

// RecordOutputRestart records a restart of the named output device.
func (m *Metrics) RecordOutputRestart(ctx context.Context, device string) {
	m.OutputRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("device", device)))
}
