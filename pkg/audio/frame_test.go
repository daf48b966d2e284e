package audio_test

import (
	"errors"
	"testing"

	"github.com/MrWong99/keyline/pkg/audio"
)

func sineFrame(t *testing.T) audio.Frame {
	t.Helper()
	f, err := audio.Sine{Frequency: 440}.Frame(2, 44100, 60, 0)
	if err != nil {
		t.Fatalf("Sine.Frame: %v", err)
	}
	return f
}

func TestCreateSilence(t *testing.T) {
	t.Parallel()

	f, err := audio.CreateSilence(2, 44100, 60)
	if err != nil {
		t.Fatalf("CreateSilence: %v", err)
	}
	if f.SampleCount() != 1470 {
		t.Fatalf("SampleCount = %d, want 1470", f.SampleCount())
	}
	if len(f.Samples) != 1470 {
		t.Fatalf("len(Samples) = %d, want 1470", len(f.Samples))
	}
	for i, s := range f.Samples {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestCreateSilence_TruncatesPerFrameLength(t *testing.T) {
	t.Parallel()

	// 44100 / 29 = 1520.68… → 1520 samples per channel.
	f, err := audio.CreateSilence(1, 44100, 29)
	if err != nil {
		t.Fatalf("CreateSilence: %v", err)
	}
	if len(f.Samples) != 1520 {
		t.Errorf("len(Samples) = %d, want 1520", len(f.Samples))
	}
}

func TestCreateSilence_InvalidShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		channels, rate, fps int
	}{
		{"zero fps", 2, 44100, 0},
		{"negative fps", 2, 44100, -1},
		{"zero channels", 0, 44100, 30},
		{"zero rate", 2, 0, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := audio.CreateSilence(tt.channels, tt.rate, tt.fps)
			if !errors.Is(err, audio.ErrInvalidFormat) {
				t.Errorf("err = %v, want ErrInvalidFormat", err)
			}
		})
	}
}

func TestSineFrame_NonSilent(t *testing.T) {
	t.Parallel()

	f := sineFrame(t)
	if len(f.Samples) != 1470 {
		t.Fatalf("len(Samples) = %d, want 1470", len(f.Samples))
	}
	var nonZero bool
	for _, s := range f.Samples {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("expected at least one non-zero sample")
	}
}

func TestMix_SilenceIsIdentity(t *testing.T) {
	t.Parallel()

	sine := sineFrame(t)
	silence, err := audio.CreateSilence(2, 44100, 60)
	if err != nil {
		t.Fatalf("CreateSilence: %v", err)
	}
	mixed, err := audio.Mix(sine, silence)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	for i := range sine.Samples {
		if mixed.Samples[i] != sine.Samples[i] {
			t.Fatalf("sample %d: got %v, want %v", i, mixed.Samples[i], sine.Samples[i])
		}
	}
	if mixed.Channels != 2 || mixed.SampleRate != 44100 || mixed.FPS != 60 {
		t.Errorf("mixed shape = %d/%d/%d, want 2/44100/60", mixed.Channels, mixed.SampleRate, mixed.FPS)
	}
}

func TestMix_Sums(t *testing.T) {
	t.Parallel()

	a := audio.Frame{Channels: 1, SampleRate: 4, FPS: 2, Samples: []float64{0.75, -0.5}}
	b := audio.Frame{Channels: 1, SampleRate: 4, FPS: 2, Samples: []float64{0.75, 0.25}}
	got, err := audio.Mix(a, b)
	if err != nil {
		t.Fatalf("Mix: %v", err)
	}
	// No clamping: 0.75 + 0.75 exceeds full scale on purpose.
	want := []float64{1.5, -0.25}
	for i := range want {
		if got.Samples[i] != want[i] {
			t.Errorf("sample %d: got %v, want %v", i, got.Samples[i], want[i])
		}
	}
}

func TestMix_FormatMismatch(t *testing.T) {
	t.Parallel()

	a, _ := audio.CreateSilence(2, 44100, 60)
	tests := []struct {
		name                string
		channels, rate, fps int
	}{
		{"channels", 1, 44100, 60},
		{"rate", 2, 48000, 60},
		{"fps", 2, 44100, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := audio.CreateSilence(tt.channels, tt.rate, tt.fps)
			_, err := audio.Mix(a, b)
			var fme *audio.FormatMismatchError
			if !errors.As(err, &fme) {
				t.Fatalf("err = %v, want *FormatMismatchError", err)
			}
			if fme.Op != "mix" {
				t.Errorf("Op = %q, want mix", fme.Op)
			}
		})
	}
}

func TestChangeVolume(t *testing.T) {
	t.Parallel()

	sine := sineFrame(t)
	orig := append([]float64(nil), sine.Samples...)

	unity := audio.ChangeVolume(sine, 1.0)
	muted := audio.ChangeVolume(sine, 0.0)
	half := audio.ChangeVolume(sine, 0.5)
	loud := audio.ChangeVolume(sine, 3)

	for i := range orig {
		if unity.Samples[i] != orig[i] {
			t.Fatalf("unity sample %d: got %v, want %v", i, unity.Samples[i], orig[i])
		}
		if muted.Samples[i] != 0 {
			t.Fatalf("muted sample %d: got %v, want 0", i, muted.Samples[i])
		}
		if half.Samples[i] != orig[i]*0.5 {
			t.Fatalf("half sample %d: got %v, want %v", i, half.Samples[i], orig[i]*0.5)
		}
		if loud.Samples[i] != orig[i]*3 {
			t.Fatalf("loud sample %d: got %v, want %v", i, loud.Samples[i], orig[i]*3)
		}
		if sine.Samples[i] != orig[i] {
			t.Fatalf("input mutated at %d", i)
		}
	}
}
