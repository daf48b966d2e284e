package audio

import "fmt"

// NewChunk returns a chunk of n silent sample frames in format f.
func NewChunk(f Format, n int) Chunk {
	if n < 0 {
		n = 0
	}
	return Chunk{Format: f, Samples: make([]float64, n*int(f.Channels))}
}

// ChunkOf wraps interleaved samples in a chunk. It returns an error when
// len(samples) is not a multiple of the channel count.
func ChunkOf(f Format, samples []float64) (Chunk, error) {
	if !f.Valid() {
		return Chunk{}, fmt.Errorf("%w: %s", ErrInvalidFormat, f)
	}
	if len(samples)%int(f.Channels) != 0 {
		return Chunk{}, fmt.Errorf("audio: %d samples is not a multiple of %d channels", len(samples), f.Channels)
	}
	return Chunk{Format: f, Samples: samples}, nil
}

// Clone returns a deep copy of c.
func (c Chunk) Clone() Chunk {
	out := Chunk{Format: c.Format}
	if c.Samples != nil {
		out.Samples = make([]float64, len(c.Samples))
		copy(out.Samples, c.Samples)
	}
	return out
}

// Slice returns the sample frames [from, to) of c sharing the underlying
// buffer. Bounds are clamped to [0, c.Len()].
func (c Chunk) Slice(from, to int) Chunk {
	n := c.Len()
	from = min(max(from, 0), n)
	to = min(max(to, from), n)
	ch := int(c.Format.Channels)
	return Chunk{Format: c.Format, Samples: c.Samples[from*ch : to*ch]}
}

// At returns the sample at frame i on channel ch.
func (c Chunk) At(i, ch int) float64 {
	return c.Samples[i*int(c.Format.Channels)+ch]
}

// Append concatenates b after a into a newly allocated chunk.
func Append(a, b Chunk) (Chunk, error) {
	if a.Format != b.Format {
		return Chunk{}, &FormatMismatchError{Op: "append", Left: a.Format.String(), Right: b.Format.String()}
	}
	out := Chunk{Format: a.Format, Samples: make([]float64, 0, len(a.Samples)+len(b.Samples))}
	out.Samples = append(out.Samples, a.Samples...)
	out.Samples = append(out.Samples, b.Samples...)
	return out, nil
}

// MixChunks sums src into a copy of dst starting at sample frame offset.
// Samples of src that fall outside dst are dropped.
func MixChunks(dst, src Chunk, offset int) (Chunk, error) {
	if dst.Format != src.Format {
		return Chunk{}, &FormatMismatchError{Op: "mix", Left: dst.Format.String(), Right: src.Format.String()}
	}
	out := dst.Clone()
	ch := int(dst.Format.Channels)
	for i := 0; i < src.Len(); i++ {
		j := offset + i
		if j < 0 {
			continue
		}
		if j >= out.Len() {
			break
		}
		for c := 0; c < ch; c++ {
			out.Samples[j*ch+c] += src.Samples[i*ch+c]
		}
	}
	return out, nil
}

// ScaleChunk returns a copy of c with every sample multiplied by gain.
func ScaleChunk(c Chunk, gain float64) Chunk {
	return Chunk{Format: c.Format, Samples: scale(c.Samples, gain)}
}

// FrameFromChunk packages the leading sample frames of c into a video frame at
// fps. Missing samples are zero filled and surplus samples are ignored.
func FrameFromChunk(c Chunk, fps int) (Frame, error) {
	f, err := CreateSilence(int(c.Format.Channels), int(c.Format.SampleRate), fps)
	if err != nil {
		return Frame{}, err
	}
	copy(f.Samples, c.Samples)
	return f, nil
}

// ChunkFromFrame returns the samples of f as a streaming chunk.
func ChunkFromFrame(f Frame) Chunk {
	return Chunk{Format: f.Format(), Samples: append([]float64(nil), f.Samples...)}
}
