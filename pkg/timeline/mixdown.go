package timeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/audio/effect"
)

const tracerName = "github.com/MrWong99/keyline/pkg/timeline"

// ErrNegativeCount is returned by [Mixdown.GetAudioChunk] for count < 0.
var ErrNegativeCount = errors.New("timeline: negative sample count")

// Clip places a source on the timeline.
type Clip struct {
	Name   string
	Source Source

	// Start is the clip's position on the timeline, Length its duration.
	Start  time.Duration
	Length time.Duration

	// Effects run in order over everything the source renders.
	Effects effect.Chain

	Muted bool
}

// Mixdown is a [Composition] summing a set of clips. Clips overlapping the
// requested range are rendered concurrently and summed in insertion order,
// so the result is deterministic. It is safe for concurrent use.
type Mixdown struct {
	mu    sync.RWMutex
	clips []*Clip

	tracer      trace.Tracer
	concurrency int
}

var _ Composition = (*Mixdown)(nil)

// Option configures a [Mixdown].
type Option func(*Mixdown)

// WithTracerProvider sets the tracer provider used for render spans.
// Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Mixdown) { m.tracer = tp.Tracer(tracerName) }
}

// WithConcurrency limits the number of clips rendered in parallel.
// Default: GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(m *Mixdown) {
		if n > 0 {
			m.concurrency = n
		}
	}
}

// NewMixdown returns an empty mixdown.
func NewMixdown(opts ...Option) *Mixdown {
	m := &Mixdown{
		tracer:      otel.GetTracerProvider().Tracer(tracerName),
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Add appends clips to the mixdown.
func (m *Mixdown) Add(clips ...*Clip) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clips = append(m.clips, clips...)
}

// Clips returns the current clips.
func (m *Mixdown) Clips() []*Clip {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Clip(nil), m.clips...)
}

// Length returns the end of the last clip.
func (m *Mixdown) Length() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var end time.Duration
	for _, c := range m.clips {
		end = max(end, c.Start+c.Length)
	}
	return end
}

// GetAudioChunk implements [Composition].
func (m *Mixdown) GetAudioChunk(ctx context.Context, format audio.Format, start, count int64) (audio.Chunk, error) {
	if !format.Valid() {
		return audio.Chunk{}, fmt.Errorf("timeline: %w: %s", audio.ErrInvalidFormat, format)
	}
	if count < 0 {
		return audio.Chunk{}, ErrNegativeCount
	}

	ctx, span := m.tracer.Start(ctx, "timeline.GetAudioChunk", trace.WithAttributes(
		attribute.Int64("keyline.start_sample", start),
		attribute.Int64("keyline.sample_count", count),
	))
	defer span.End()

	clips := m.Clips()
	parts := make([]audio.Chunk, len(clips))
	offsets := make([]int, len(clips))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, c := range clips {
		if c.Muted || c.Source == nil {
			continue
		}
		cs := durationSamples(c.Start, format.SampleRate)
		ce := cs + durationSamples(c.Length, format.SampleRate)
		from, to := max(start, cs), min(start+count, ce)
		if from >= to {
			continue
		}
		g.Go(func() error {
			chunk, err := m.renderClip(gctx, c, format, from-cs, to-from)
			if err != nil {
				return fmt.Errorf("timeline: clip %q: %w", c.Name, err)
			}
			parts[i] = chunk
			offsets[i] = int(from - start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return audio.Chunk{}, err
	}

	out := audio.NewChunk(format, int(count))
	for i, p := range parts {
		if p.Empty() {
			continue
		}
		var err error
		if out, err = audio.MixChunks(out, p, offsets[i]); err != nil {
			return audio.Chunk{}, fmt.Errorf("timeline: clip %q: %w", clips[i].Name, err)
		}
	}
	return out, nil
}

// renderClip renders count object-local frames of c starting at local.
func (m *Mixdown) renderClip(ctx context.Context, c *Clip, format audio.Format, local, count int64) (audio.Chunk, error) {
	ctx, span := m.tracer.Start(ctx, "timeline.renderClip", trace.WithAttributes(
		attribute.String("keyline.clip", c.Name),
		attribute.Int64("keyline.position", local),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return audio.Chunk{}, err
	}
	chunk, err := c.Source.Render(ctx, format, local, count)
	if err != nil {
		span.RecordError(err)
		return audio.Chunk{}, err
	}
	if chunk.Format != format {
		return audio.Chunk{}, &audio.FormatMismatchError{Op: "render", Left: chunk.Format.String(), Right: format.String()}
	}
	out, err := c.Effects.Apply(chunk, effect.Context{
		Format:         format,
		ObjectDuration: c.Length.Seconds(),
		Position:       local,
	})
	if err != nil {
		span.RecordError(err)
		return audio.Chunk{}, err
	}
	return out, nil
}
