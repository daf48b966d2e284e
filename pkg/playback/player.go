package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/timeline"
)

const (
	// DefaultIdleInterval is the sleep between queue depth checks once the
	// target depth is reached.
	DefaultIdleInterval = 10 * time.Millisecond
)

var (
	// ErrNilComposition is returned by Play when no composition is given.
	ErrNilComposition = errors.New("playback: nil composition")

	// ErrInvalidChunk is reported when a composition returns a chunk that
	// does not match the requested format.
	ErrInvalidChunk = errors.New("playback: composition returned an invalid chunk")
)

// Option configures a [Player].
type Option func(*Player)

// WithTargetBuffer sets the queued depth the producer keeps ahead of the
// consumer. Default: half a second of audio at the session's sample rate.
func WithTargetBuffer(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.targetBuffer = d
		}
	}
}

// WithIdleInterval sets the sleep between depth checks once the target is
// reached. Default: [DefaultIdleInterval].
func WithIdleInterval(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.idle = d
		}
	}
}

// WithChunkSize sets the number of sample frames requested per composition
// call. Default: the target depth.
func WithChunkSize(frames int64) Option {
	return func(p *Player) {
		if frames > 0 {
			p.chunkSize = frames
		}
	}
}

// WithDiagnostics sets the sink that receives production failures. Default:
// the failure is logged at error level.
func WithDiagnostics(fn func(error)) Option {
	return func(p *Player) { p.diag = fn }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMeterProvider sets the meter provider for the player's instruments.
// Default: the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Player) { p.mp = mp }
}

// session is one Play..Pause lifetime.
type session struct {
	id     string
	comp   timeline.Composition
	info   timeline.ProjectInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// Player coordinates streaming playback of a composition to an
// [OutputDevice].
//
// The player is either playing or stopped. Pausing stops the production task
// and discards queued audio but keeps [Player.CurrentSample], so a later Play
// can resume from it.
//
// The synthesis cursor advances by the requested chunk length after every
// enqueue, regardless of how much of the queue the consumer has played.
// CurrentSample is therefore the position of the next sample to be
// synthesised, which runs ahead of the audible position by up to the queued
// depth.
//
// All exported methods are safe for concurrent use.
type Player struct {
	device OutputDevice

	targetBuffer time.Duration
	idle         time.Duration
	chunkSize    int64
	diag         func(error)
	log          *slog.Logger
	mp           metric.MeterProvider
	metrics      *instruments

	// ctl serialises Play and Pause; mu guards the fields below it.
	ctl     sync.Mutex
	mu      sync.Mutex
	current *session
	speed   float64

	cursor atomic.Int64
}

// NewPlayer returns a stopped player feeding device.
func NewPlayer(device OutputDevice, opts ...Option) (*Player, error) {
	if device == nil {
		return nil, errors.New("playback: nil output device")
	}
	p := &Player{
		device: device,
		idle:   DefaultIdleInterval,
		log:    slog.Default(),
		speed:  1,
	}
	for _, o := range opts {
		o(p)
	}
	if p.mp == nil {
		p.mp = otel.GetMeterProvider()
	}
	m, err := newInstruments(p.mp)
	if err != nil {
		return nil, fmt.Errorf("playback: create instruments: %w", err)
	}
	p.metrics = m
	if p.diag == nil {
		p.diag = func(err error) {
			p.log.Error("playback: production failed", "err", err)
		}
	}
	return p, nil
}

// Play starts streaming comp from startSample. It returns immediately; the
// audio is produced by a background task. Play is a no-op while the player is
// already playing.
//
// speed is recorded and reported by [Player.Speed]; audio is always
// synthesised at normal rate.
func (p *Player) Play(comp timeline.Composition, info timeline.ProjectInfo, startSample int64, speed float64) error {
	if comp == nil {
		return ErrNilComposition
	}
	if !info.Format.Valid() {
		return fmt.Errorf("playback: %w: %s", audio.ErrInvalidFormat, info.Format)
	}

	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return nil
	}

	p.device.ClearQueue()
	p.cursor.Store(startSample)
	p.speed = speed

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		comp:   comp,
		info:   info,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.current = s
	go p.run(ctx, s)
	return nil
}

// Pause stops the production task, waits for it to exit and discards any
// queued audio. CurrentSample is preserved. Pause is a no-op while stopped.
func (p *Player) Pause() {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	s := p.current
	p.current = nil
	p.mu.Unlock()
	if s == nil {
		return
	}

	s.cancel()
	<-s.done
	p.device.ClearQueue()
	p.log.Debug("playback paused", "session", s.id, "cursor", p.cursor.Load())
}

// Close stops playback. It is equivalent to Pause and always returns nil.
func (p *Player) Close() error {
	p.Pause()
	return nil
}

// IsPlaying reports whether a production task is running.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// CurrentSample returns the synthesis cursor: the absolute position of the
// next sample frame the player will request.
func (p *Player) CurrentSample() int64 {
	return p.cursor.Load()
}

// Speed returns the speed passed to the most recent effective Play.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// TargetFrames returns the queued depth in sample frames the player keeps
// for a session at format f.
func (p *Player) TargetFrames(f audio.Format) int64 {
	if p.targetBuffer > 0 {
		return int64(p.targetBuffer.Seconds() * float64(f.SampleRate))
	}
	return int64(f.SampleRate / 2)
}

// run is the production task of session s.
func (p *Player) run(ctx context.Context, s *session) {
	defer close(s.done)
	defer s.cancel()

	mctx := context.WithoutCancel(ctx)
	p.metrics.active.Add(mctx, 1)
	defer p.metrics.active.Add(mctx, -1)

	log := p.log.With("session", s.id)
	log.Debug("playback started", "start", p.cursor.Load(), "format", s.info.Format.String())

	err := p.produce(ctx, s, log)
	if err == nil || ctx.Err() != nil {
		return
	}

	p.metrics.errors.Add(mctx, 1)
	p.mu.Lock()
	if p.current == s {
		p.current = nil
	}
	p.mu.Unlock()
	p.diag(fmt.Errorf("playback: session %s: %w", s.id, err))
}

// produce fills the device to the target depth, then tops it up as the
// consumer drains it. It returns nil on cancellation.
func (p *Player) produce(ctx context.Context, s *session, log *slog.Logger) error {
	target := max(p.TargetFrames(s.info.Format), 1)
	chunk := p.chunkSize
	if chunk <= 0 {
		chunk = target
	}

	// Pre-fill.
	for p.device.QueuedSampleCount() < target {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.fill(ctx, s, chunk); err != nil {
			return err
		}
	}
	log.Debug("playback prefilled", "queued", p.device.QueuedSampleCount(), "target", target)

	timer := time.NewTimer(p.idle)
	defer timer.Stop()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if p.device.QueuedSampleCount() < target {
			if err := p.fill(ctx, s, chunk); err != nil {
				return err
			}
			continue
		}
		timer.Reset(p.idle)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// fill synthesises and enqueues one chunk of n frames at the cursor.
func (p *Player) fill(ctx context.Context, s *session, n int64) error {
	start := p.cursor.Load()
	began := time.Now()
	c, err := s.comp.GetAudioChunk(ctx, s.info.Format, start, n)
	if ctx.Err() != nil {
		// A chunk completed after cancellation is dropped, never enqueued.
		return nil
	}
	if err != nil {
		return fmt.Errorf("synthesise [%d, %d): %w", start, start+n, err)
	}
	if c.Format != s.info.Format {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidChunk, c.Format, s.info.Format)
	}
	if c.Empty() {
		return fmt.Errorf("%w: empty chunk at %d", ErrInvalidChunk, start)
	}
	p.metrics.synthDuration.Record(ctx, time.Since(began).Seconds())

	p.cursor.Store(start + n)
	if err := p.device.InsertQueue(c); err != nil {
		return fmt.Errorf("enqueue at %d: %w", start, err)
	}

	attrs := metric.WithAttributes(attribute.Int("keyline.sample_rate", int(s.info.Format.SampleRate)))
	p.metrics.chunks.Add(ctx, 1, attrs)
	p.metrics.samples.Add(ctx, int64(c.Len()), attrs)
	return nil
}
