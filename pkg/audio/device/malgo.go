// Package device plays a [playback.Queue] on the system's default output
// device through miniaudio (malgo).
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/playback"
)

// Speaker drains a queue into a miniaudio playback device. The device asks
// for audio from its own thread; when the queue runs dry the remainder of the
// period is filled with silence and counted as an underrun.
type Speaker struct {
	queue  *playback.Queue
	format audio.Format
	log    *slog.Logger

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
	closed bool

	// scratch is only touched from the device callback.
	scratch   []float64
	underruns atomic.Int64
	frames    atomic.Int64
}

// Open initialises the default playback device for format. The device is
// not started. Failures to reach the audio backend are returned as
// [*audio.ResourceUnavailableError].
func Open(q *playback.Queue, format audio.Format, log *slog.Logger) (*Speaker, error) {
	if q == nil {
		return nil, errors.New("device: nil queue")
	}
	if !format.Valid() {
		return nil, fmt.Errorf("device: %w: %s", audio.ErrInvalidFormat, format)
	}
	if log == nil {
		log = slog.Default()
	}
	s := &Speaker{queue: q, format: format, log: log}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", "msg", message)
	})
	if err != nil {
		return nil, &audio.ResourceUnavailableError{Resource: "device", Err: err}
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.PerformanceProfile = malgo.LowLatency
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = uint32(format.Channels)
	config.SampleRate = format.SampleRate

	dev, err := malgo.InitDevice(ctx.Context, config, malgo.DeviceCallbacks{Data: s.onData})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, &audio.ResourceUnavailableError{Resource: "device", Err: err}
	}
	s.ctx = ctx
	s.dev = dev
	return s, nil
}

// Start begins playback.
func (s *Speaker) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("device: closed")
	}
	if err := s.dev.Start(); err != nil {
		return &audio.ResourceUnavailableError{Resource: "device", Err: err}
	}
	s.log.Info("audio device started", "format", s.format.String())
	return nil
}

// Stop halts playback; queued audio stays in the queue.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.dev.Stop()
}

// Close stops and releases the device. It is idempotent.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.dev.Uninit()
	err := s.ctx.Uninit()
	s.ctx.Free()
	return err
}

// Underruns returns how many device periods were padded with silence.
func (s *Speaker) Underruns() int64 { return s.underruns.Load() }

// FramesPlayed returns the number of sample frames handed to the device,
// silence included.
func (s *Speaker) FramesPlayed() int64 { return s.frames.Load() }

// Healthy reports whether the device is open.
func (s *Speaker) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Speaker) onData(out, _ []byte, frameCount uint32) {
	s.fill(out, int(frameCount))
}

// fill writes frameCount frames of float32 audio into out.
func (s *Speaker) fill(out []byte, frameCount int) {
	n := frameCount * int(s.format.Channels)
	if cap(s.scratch) < n {
		s.scratch = make([]float64, n)
	}
	buf := s.scratch[:n]
	got := s.queue.Read(buf)
	if got < n {
		clear(buf[got:])
		s.underruns.Add(1)
	}
	audio.PutFloat32(out, buf)
	s.frames.Add(int64(frameCount))
}
