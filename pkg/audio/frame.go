package audio

import "fmt"

// CreateSilence allocates a zero-valued frame of the given shape.
// It returns [ErrInvalidFormat] if any dimension is not positive.
func CreateSilence(channels, sampleRate, fps int) (Frame, error) {
	if channels <= 0 || sampleRate <= 0 || fps <= 0 {
		return Frame{}, fmt.Errorf("%w: channels=%d sample_rate=%d fps=%d", ErrInvalidFormat, channels, sampleRate, fps)
	}
	return Frame{
		Channels:   channels,
		SampleRate: sampleRate,
		FPS:        fps,
		Samples:    make([]float64, frameSampleCount(channels, sampleRate, fps)),
	}, nil
}

// Mix sums a and b sample by sample. Both frames must share channel count,
// sample rate and fps, otherwise a [*FormatMismatchError] is returned.
// The result is not clamped; consumers own headroom.
func Mix(a, b Frame) (Frame, error) {
	if !a.sameShape(b) || len(a.Samples) != len(b.Samples) {
		return Frame{}, &FormatMismatchError{Op: "mix", Left: a.shapeString(), Right: b.shapeString()}
	}
	out := Frame{
		Channels:   a.Channels,
		SampleRate: a.SampleRate,
		FPS:        a.FPS,
		Samples:    make([]float64, len(a.Samples)),
	}
	for i := range a.Samples {
		out.Samples[i] = a.Samples[i] + b.Samples[i]
	}
	return out, nil
}

// ChangeVolume returns a copy of f with every sample multiplied by gain.
// gain is unconstrained; values above 1 amplify.
func ChangeVolume(f Frame, gain float64) Frame {
	out := f
	out.Samples = scale(f.Samples, gain)
	return out
}

func scale(in []float64, gain float64) []float64 {
	out := make([]float64, len(in))
	for i, s := range in {
		out[i] = s * gain
	}
	return out
}
