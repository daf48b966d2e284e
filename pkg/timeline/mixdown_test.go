package timeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/audio/effect"
	"github.com/MrWong99/keyline/pkg/timeline"
)

var mono100 = audio.Format{SampleRate: 100, Channels: 1}

// constSource renders a constant value, or fails with err.
type constSource struct {
	value float64
	err   error
}

func (s constSource) Render(_ context.Context, f audio.Format, _, count int64) (audio.Chunk, error) {
	if s.err != nil {
		return audio.Chunk{}, s.err
	}
	c := audio.NewChunk(f, int(count))
	for i := range c.Samples {
		c.Samples[i] = s.value
	}
	return c, nil
}

func chunk(t *testing.T, m *timeline.Mixdown, f audio.Format, start, count int64) audio.Chunk {
	t.Helper()
	c, err := m.GetAudioChunk(context.Background(), f, start, count)
	if err != nil {
		t.Fatalf("GetAudioChunk(%d, %d): %v", start, count, err)
	}
	if c.Len() != int(count) {
		t.Fatalf("Len = %d, want %d", c.Len(), count)
	}
	return c
}

func TestMixdown_SineMatchesSource(t *testing.T) {
	t.Parallel()

	sine := audio.Sine{Frequency: 5}
	m := timeline.NewMixdown()
	m.Add(&timeline.Clip{Name: "tone", Source: timeline.SineSource{Sine: sine}, Length: 2 * time.Second})

	got := chunk(t, m, mono100, 30, 50)
	want := sine.Chunk(mono100, 30, 50)
	for i := range want.Samples {
		if got.Samples[i] != want.Samples[i] {
			t.Fatalf("sample %d: got %v, want %v", i, got.Samples[i], want.Samples[i])
		}
	}
}

func TestMixdown_PlacementAndSum(t *testing.T) {
	t.Parallel()

	m := timeline.NewMixdown(timeline.WithConcurrency(2))
	m.Add(
		&timeline.Clip{Name: "a", Source: constSource{value: 1}, Start: 0, Length: time.Second},
		&timeline.Clip{Name: "b", Source: constSource{value: 0.5}, Start: 500 * time.Millisecond, Length: time.Second},
		&timeline.Clip{Name: "muted", Source: constSource{value: 100}, Length: 10 * time.Second, Muted: true},
	)

	c := chunk(t, m, mono100, 0, 200)
	for i, s := range c.Samples {
		var want float64
		switch {
		case i < 50:
			want = 1
		case i < 100:
			want = 1.5
		case i < 150:
			want = 0.5
		}
		if s != want {
			t.Fatalf("sample %d = %v, want %v", i, s, want)
		}
	}
	if m.Length() != 10*time.Second {
		t.Errorf("Length = %v, want 10s", m.Length())
	}
}

func TestMixdown_EffectsUseObjectLocalPosition(t *testing.T) {
	t.Parallel()

	m := timeline.NewMixdown()
	m.Add(&timeline.Clip{
		Name:    "faded",
		Source:  constSource{value: 1},
		Start:   time.Second,
		Length:  2 * time.Second,
		Effects: effect.Chain{&effect.VolumeFade{In: 1}},
	})

	c := chunk(t, m, mono100, 100, 200)
	if c.Samples[0] != 0 {
		t.Errorf("first clip sample = %v, want 0", c.Samples[0])
	}
	if c.Samples[50] != 0.5 {
		t.Errorf("sample 50 = %v, want 0.5", c.Samples[50])
	}
	if c.Samples[150] != 1 {
		t.Errorf("sample 150 = %v, want 1", c.Samples[150])
	}
}

func TestMixdown_Deterministic(t *testing.T) {
	t.Parallel()

	m := timeline.NewMixdown()
	for i := 0; i < 8; i++ {
		m.Add(&timeline.Clip{Source: timeline.SineSource{Sine: audio.Sine{Frequency: float64(50 + i*7), Amplitude: 0.1}}, Length: time.Second})
	}
	f := audio.Format{SampleRate: 8000, Channels: 2}
	a := chunk(t, m, f, 100, 1000)
	b := chunk(t, m, f, 100, 1000)
	for i := range a.Samples {
		if a.Samples[i] != b.Samples[i] {
			t.Fatalf("sample %d differs between calls", i)
		}
	}
}

func TestMixdown_SourceError(t *testing.T) {
	t.Parallel()

	boom := &audio.ResourceUnavailableError{Resource: "decoder", Err: errors.New("gone")}
	m := timeline.NewMixdown()
	m.Add(&timeline.Clip{Name: "broken", Source: constSource{err: boom}, Length: time.Second})

	_, err := m.GetAudioChunk(context.Background(), mono100, 0, 10)
	if !audio.IsResourceUnavailable(err) {
		t.Fatalf("err = %v, want ResourceUnavailableError", err)
	}
}

func TestMixdown_InvalidArguments(t *testing.T) {
	t.Parallel()

	m := timeline.NewMixdown()
	if _, err := m.GetAudioChunk(context.Background(), audio.Format{}, 0, 10); !errors.Is(err, audio.ErrInvalidFormat) {
		t.Errorf("zero format: err = %v", err)
	}
	if _, err := m.GetAudioChunk(context.Background(), mono100, 0, -1); !errors.Is(err, timeline.ErrNegativeCount) {
		t.Errorf("negative count: err = %v", err)
	}
	c := chunk(t, m, mono100, 0, 0)
	if !c.Empty() {
		t.Error("zero count should yield an empty chunk")
	}
}

func TestMixdown_Spans(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	m := timeline.NewMixdown(timeline.WithTracerProvider(tp))
	m.Add(&timeline.Clip{Name: "x", Source: constSource{value: 1}, Length: time.Second})
	chunk(t, m, mono100, 0, 10)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	if names["timeline.GetAudioChunk"] != 1 || names["timeline.renderClip"] != 1 {
		t.Errorf("spans = %v", names)
	}
}

func TestBufferSource(t *testing.T) {
	t.Parallel()

	pcm, err := audio.ChunkOf(mono100, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	if err != nil {
		t.Fatalf("ChunkOf: %v", err)
	}
	src := timeline.NewBufferSource(pcm)
	stereo := audio.Format{SampleRate: 100, Channels: 2}

	tests := []struct {
		start, count int64
		want         []float64
	}{
		{-2, 5, []float64{0, 0, 1, 2, 3}},
		{8, 5, []float64{9, 10, 0, 0, 0}},
		{20, 2, []float64{0, 0}},
	}
	for _, tt := range tests {
		c, err := src.Render(context.Background(), stereo, tt.start, tt.count)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if c.Len() != len(tt.want) {
			t.Fatalf("Render(%d,%d) len = %d", tt.start, tt.count, c.Len())
		}
		for i, w := range tt.want {
			if c.At(i, 0) != w || c.At(i, 1) != w {
				t.Errorf("Render(%d,%d)[%d] = %v/%v, want %v", tt.start, tt.count, i, c.At(i, 0), c.At(i, 1), w)
			}
		}
	}
}
