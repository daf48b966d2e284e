package effect

import (
	"math"

	"github.com/MrWong99/keyline/pkg/audio"
)

// VolumeFadeID is the registry key of [VolumeFade].
const VolumeFadeID = "volume_fade"

var _ Effect = (*VolumeFade)(nil)

// VolumeFade applies a linear fade-in at the start and a linear fade-out at
// the end of the owning object. Both regions are computed against the
// object-global sample position, so consecutive chunks of one object produce
// a seamless envelope. On short objects the two regions may overlap; their
// multipliers then compose multiplicatively.
type VolumeFade struct {
	// In and Out are the fade-in and fade-out durations in seconds.
	// Non-positive values disable the respective region.
	In, Out float32

	// Bypass marks the effect inactive.
	Bypass bool
}

func (f *VolumeFade) ID() string { return VolumeFadeID }

func (f *VolumeFade) Active() bool { return !f.Bypass }

func (f *VolumeFade) Clone() Effect {
	c := *f
	return &c
}

// Apply implements [Effect]. The input is returned as is when it is empty or
// when neither fade region is enabled.
func (f *VolumeFade) Apply(in audio.Chunk, ctx Context) (audio.Chunk, error) {
	if in.Empty() || (f.In <= 0 && f.Out <= 0) {
		return in, nil
	}
	if err := checkFormat("volume fade", in, ctx); err != nil {
		return audio.Chunk{}, err
	}

	rate := float64(ctx.Format.SampleRate)
	// Lengths are whole samples; float32 seconds rarely convert exactly.
	fadeIn := math.Round(float64(f.In) * rate)
	fadeOut := math.Round(float64(f.Out) * rate)
	total := ctx.TotalSamples()
	ch := int(in.Format.Channels)

	out := audio.Chunk{Format: in.Format, Samples: make([]float64, len(in.Samples))}
	for i := 0; i < in.Len(); i++ {
		m := f.multiplier(float64(ctx.Position+int64(i)), fadeIn, fadeOut, total)
		for c := 0; c < ch; c++ {
			out.Samples[i*ch+c] = in.Samples[i*ch+c] * m
		}
	}
	return out, nil
}

// multiplier returns the envelope gain in [0, 1] at global position p.
func (f *VolumeFade) multiplier(p, fadeIn, fadeOut, total float64) float64 {
	m := 1.0
	if fadeIn > 0 && p < fadeIn {
		m *= p / fadeIn
	}
	if fadeOut > 0 && p >= total-fadeOut {
		m *= (total - p) / fadeOut
	}
	return min(max(m, 0), 1)
}
