package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/keyline/internal/config"
	"github.com/MrWong99/keyline/internal/observe"
	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/audio/device"
	"github.com/MrWong99/keyline/pkg/audio/monitor"
	"github.com/MrWong99/keyline/pkg/playback"
)

// registerBuiltinSinks wires the output factories that ship with keyline
// into reg.
func registerBuiltinSinks(reg *config.Registry, metrics *observe.Metrics) {
	reg.Register(config.OutputMalgo, func(_ config.OutputConfig, q *playback.Queue, f audio.Format) (config.Sink, error) {
		s, err := device.Open(q, f, slog.Default().With("output", "malgo"))
		if err != nil {
			return nil, err
		}
		return &speakerSink{Speaker: s}, nil
	})

	reg.Register(config.OutputMonitor, func(cfg config.OutputConfig, q *playback.Queue, f audio.Format) (config.Sink, error) {
		m, err := monitor.New(q, f,
			monitor.WithPeriod(cfg.Monitor.Period),
			monitor.WithOriginPatterns(cfg.Monitor.OriginPatterns...),
			monitor.WithLogger(slog.Default().With("output", "monitor")),
			monitor.WithListenerObserver(func(delta int64) {
				metrics.MonitorListeners.Add(context.Background(), delta)
			}),
		)
		if err != nil {
			return nil, err
		}
		return m, nil
	})

	// The null output paces the queue in real time and discards the audio.
	reg.Register(config.OutputNull, func(cfg config.OutputConfig, q *playback.Queue, f audio.Format) (config.Sink, error) {
		m, err := monitor.New(q, f, monitor.WithPeriod(cfg.Monitor.Period))
		if err != nil {
			return nil, err
		}
		return nullSink{m: m}, nil
	})

	slog.Debug("output sinks registered", "kinds", reg.Kinds())
}

// speakerSink runs a malgo speaker for the lifetime of a context. The device
// is released by Close, so Run may be restarted after a failed start.
type speakerSink struct {
	*device.Speaker
}

func (s *speakerSink) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return fmt.Errorf("start speaker: %w", err)
	}
	<-ctx.Done()
	if err := s.Stop(); err != nil {
		slog.Warn("speaker stop error", "err", err)
	}
	return ctx.Err()
}

// nullSink hides the monitor's HTTP surface so no route is mounted.
type nullSink struct {
	m *monitor.Monitor
}

func (n nullSink) Run(ctx context.Context) error { return n.m.Run(ctx) }
func (n nullSink) Healthy() bool                 { return n.m.Healthy() }
