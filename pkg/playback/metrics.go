package playback

import (
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/keyline/pkg/playback"

// synthBuckets are histogram boundaries (in seconds) for chunk synthesis.
var synthBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
}

// instruments holds the player's OTel instruments.
type instruments struct {
	// chunks counts chunks enqueued to the device.
	chunks metric.Int64Counter

	// samples counts sample frames enqueued to the device.
	samples metric.Int64Counter

	// synthDuration tracks how long one GetAudioChunk call takes.
	synthDuration metric.Float64Histogram

	// errors counts production loop failures.
	errors metric.Int64Counter

	// active tracks running production sessions.
	active metric.Int64UpDownCounter
}

func newInstruments(mp metric.MeterProvider) (*instruments, error) {
	m := mp.Meter(meterName)
	var err error
	in := &instruments{}

	if in.chunks, err = m.Int64Counter("keyline.playback.chunks",
		metric.WithDescription("Chunks enqueued to the output device."),
	); err != nil {
		return nil, err
	}
	if in.samples, err = m.Int64Counter("keyline.playback.samples",
		metric.WithDescription("Sample frames enqueued to the output device."),
	); err != nil {
		return nil, err
	}
	if in.synthDuration, err = m.Float64Histogram("keyline.playback.chunk.duration",
		metric.WithDescription("Latency of synthesising one chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(synthBuckets...),
	); err != nil {
		return nil, err
	}
	if in.errors, err = m.Int64Counter("keyline.playback.errors",
		metric.WithDescription("Playback sessions terminated by an error."),
	); err != nil {
		return nil, err
	}
	if in.active, err = m.Int64UpDownCounter("keyline.playback.active_sessions",
		metric.WithDescription("Number of running playback sessions."),
	); err != nil {
		return nil, err
	}
	return in, nil
}
