package effect_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/audio/effect"
	"github.com/MrWong99/keyline/pkg/interp"
)

var mono100 = audio.Format{SampleRate: 100, Channels: 1}

func ones(f audio.Format, n int) audio.Chunk {
	c := audio.NewChunk(f, n)
	for i := range c.Samples {
		c.Samples[i] = 1
	}
	return c
}

func apply(t *testing.T, e effect.Effect, in audio.Chunk, ctx effect.Context) audio.Chunk {
	t.Helper()
	out, err := e.Apply(in, ctx)
	if err != nil {
		t.Fatalf("%s.Apply: %v", e.ID(), err)
	}
	return out
}

func TestVolumeFade_Disabled(t *testing.T) {
	t.Parallel()

	in := ones(mono100, 10)
	ctx := effect.Context{Format: mono100, ObjectDuration: 1}
	for _, f := range []*effect.VolumeFade{{}, {In: -1, Out: 0}, {In: 0, Out: -2}} {
		out := apply(t, f, in, ctx)
		for i, s := range out.Samples {
			if s != 1 {
				t.Fatalf("%+v sample %d = %v, want 1", f, i, s)
			}
		}
	}
}

func TestVolumeFade_EmptyInput(t *testing.T) {
	t.Parallel()

	f := &effect.VolumeFade{In: 1, Out: 1}
	out := apply(t, f, audio.Chunk{}, effect.Context{Format: mono100, ObjectDuration: 1})
	if !out.Empty() {
		t.Errorf("expected empty output, got %d samples", out.Len())
	}
}

func TestVolumeFade_FadeIn(t *testing.T) {
	t.Parallel()

	f := &effect.VolumeFade{In: 1}
	in := ones(mono100, 200)
	out := apply(t, f, in, effect.Context{Format: mono100, ObjectDuration: 10})

	tests := []struct {
		idx  int
		want float64
	}{
		{0, 0},
		{25, 0.25},
		{50, 0.5},
		{99, 0.99},
		{100, 1},
		{199, 1},
	}
	for _, tt := range tests {
		if got := out.Samples[tt.idx]; got != tt.want {
			t.Errorf("sample %d = %v, want %v", tt.idx, got, tt.want)
		}
	}
	for i, s := range in.Samples {
		if s != 1 {
			t.Fatalf("input mutated at %d", i)
		}
	}
}

func TestVolumeFade_FractionalSecondsAreWholeSamples(t *testing.T) {
	t.Parallel()

	cd := audio.Format{SampleRate: 44100, Channels: 1}
	f := &effect.VolumeFade{In: 0.1, Out: 0.1}
	out := apply(t, f, ones(cd, 44100), effect.Context{Format: cd, ObjectDuration: 1})

	tests := []struct {
		idx  int
		want float64
	}{
		{0, 0},
		{2205, 0.5},
		{4410, 1},
		{20000, 1},
		{39689, 1},
		{39690, 1},
		{41895, 0.5},
	}
	for _, tt := range tests {
		if got := out.Samples[tt.idx]; got != tt.want {
			t.Errorf("sample %d = %v, want %v", tt.idx, got, tt.want)
		}
	}
}

func TestVolumeFade_FadeOut(t *testing.T) {
	t.Parallel()

	f := &effect.VolumeFade{Out: 1}
	in := ones(mono100, 200)
	out := apply(t, f, in, effect.Context{Format: mono100, ObjectDuration: 10, Position: 800})

	tests := []struct {
		idx  int
		want float64
	}{
		{0, 1},
		{99, 1},
		{100, 1},
		{150, 0.5},
		{199, 0.01},
	}
	for _, tt := range tests {
		if got := out.Samples[tt.idx]; got != tt.want {
			t.Errorf("sample %d (p=%d) = %v, want %v", tt.idx, 800+tt.idx, got, tt.want)
		}
	}
}

func TestVolumeFade_OverlapComposes(t *testing.T) {
	t.Parallel()

	f := &effect.VolumeFade{In: 1, Out: 1}
	out := apply(t, f, ones(mono100, 100), effect.Context{Format: mono100, ObjectDuration: 1})
	if got := out.Samples[50]; got != 0.25 {
		t.Errorf("sample 50 = %v, want 0.25", got)
	}
	if got := out.Samples[0]; got != 0 {
		t.Errorf("sample 0 = %v, want 0", got)
	}
}

func TestVolumeFade_SeamlessAcrossChunks(t *testing.T) {
	t.Parallel()

	f := &effect.VolumeFade{In: 0.5, Out: 2}
	whole := ones(mono100, 300)
	base := effect.Context{Format: mono100, ObjectDuration: 3}

	full := apply(t, f, whole, base)

	stitched := audio.Chunk{Format: mono100}
	for pos := 0; pos < 300; pos += 70 {
		part := whole.Slice(pos, pos+70)
		ctx := base
		ctx.Position = int64(pos)
		c := apply(t, f, part, ctx)
		var err error
		if stitched, err = audio.Append(stitched, c); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if stitched.Len() != full.Len() {
		t.Fatalf("stitched len = %d, want %d", stitched.Len(), full.Len())
	}
	for i := range full.Samples {
		if stitched.Samples[i] != full.Samples[i] {
			t.Fatalf("sample %d: stitched %v, whole %v", i, stitched.Samples[i], full.Samples[i])
		}
	}
}

func TestVolumeFade_SameMultiplierPerChannel(t *testing.T) {
	t.Parallel()

	stereo := audio.Format{SampleRate: 100, Channels: 2}
	in := audio.NewChunk(stereo, 100)
	for i := 0; i < in.Len(); i++ {
		in.Samples[2*i] = 1
		in.Samples[2*i+1] = -0.5
	}
	out := apply(t, &effect.VolumeFade{In: 1}, in, effect.Context{Format: stereo, ObjectDuration: 10})
	for i := 0; i < out.Len(); i++ {
		l, r := out.At(i, 0), out.At(i, 1)
		if r != -0.5*l {
			t.Fatalf("frame %d: left %v right %v", i, l, r)
		}
	}
}

func TestVolumeFade_FormatMismatch(t *testing.T) {
	t.Parallel()

	_, err := (&effect.VolumeFade{In: 1}).Apply(ones(mono100, 10), effect.Context{
		Format:         audio.Format{SampleRate: 48000, Channels: 1},
		ObjectDuration: 1,
	})
	var fme *audio.FormatMismatchError
	if !errors.As(err, &fme) {
		t.Fatalf("err = %v, want *FormatMismatchError", err)
	}
}

func TestGain_Static(t *testing.T) {
	t.Parallel()

	out := apply(t, &effect.Gain{Gain: 2.5}, ones(mono100, 4), effect.Context{Format: mono100, ObjectDuration: 1})
	for i, s := range out.Samples {
		if s != 2.5 {
			t.Errorf("sample %d = %v, want 2.5", i, s)
		}
	}
}

func TestGain_Envelope(t *testing.T) {
	t.Parallel()

	g := &effect.Gain{
		Gain: 2,
		Envelope: interp.NewTrack(
			interp.Keyframe{Frame: 0, Value: 0},
			interp.Keyframe{Frame: 10, Value: 1},
		),
	}
	out := apply(t, g, ones(mono100, 11), effect.Context{Format: mono100, ObjectDuration: 1})
	for i, s := range out.Samples {
		want := 2 * (float64(i) / 10)
		if s != want {
			t.Errorf("sample %d = %v, want %v", i, s, want)
		}
	}
}

func TestGain_CloneCopiesEnvelope(t *testing.T) {
	t.Parallel()

	g := &effect.Gain{Gain: 1, Envelope: interp.NewTrack(interp.Keyframe{Frame: 0, Value: 0.5})}
	c := g.Clone().(*effect.Gain)
	g.Envelope.Add(interp.Keyframe{Frame: 0, Value: 1})
	if v, _ := c.Envelope.ValueAt(0); v != 0.5 {
		t.Errorf("clone envelope = %v, want 0.5", v)
	}
}

func TestChain_SkipsInactive(t *testing.T) {
	t.Parallel()

	chain := effect.Chain{
		&effect.Gain{Gain: 2},
		&effect.Gain{Gain: 100, Bypass: true},
		nil,
		&effect.Gain{Gain: 3},
	}
	out, err := chain.Apply(ones(mono100, 3), effect.Context{Format: mono100, ObjectDuration: 1})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for i, s := range out.Samples {
		if s != 6 {
			t.Errorf("sample %d = %v, want 6", i, s)
		}
	}
}

func TestChain_WrapsErrors(t *testing.T) {
	t.Parallel()

	chain := effect.Chain{&effect.VolumeFade{In: 1}}
	_, err := chain.Apply(ones(mono100, 3), effect.Context{Format: audio.Format{SampleRate: 8000, Channels: 2}})
	if err == nil || !strings.Contains(err.Error(), effect.VolumeFadeID) {
		t.Fatalf("err = %v, want mention of %s", err, effect.VolumeFadeID)
	}
	var fme *audio.FormatMismatchError
	if !errors.As(err, &fme) {
		t.Errorf("err = %v, want wrapped *FormatMismatchError", err)
	}
}

func TestChain_Clone(t *testing.T) {
	t.Parallel()

	orig := effect.Chain{&effect.VolumeFade{In: 1}}
	cp := orig.Clone()
	orig[0].(*effect.VolumeFade).In = 5
	if cp[0].(*effect.VolumeFade).In != 1 {
		t.Error("clone shares state with original")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := effect.NewRegistry()
	if got := strings.Join(r.IDs(), ","); got != "gain,volume_fade" {
		t.Errorf("IDs = %s", got)
	}
	e, err := r.New(effect.VolumeFadeID)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if e.ID() != effect.VolumeFadeID || !e.Active() {
		t.Errorf("got %s active=%v", e.ID(), e.Active())
	}
	if _, err := r.New("reverb"); !errors.Is(err, effect.ErrNotRegistered) {
		t.Errorf("err = %v, want ErrNotRegistered", err)
	}
}
