package audio

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"
)

// FormatConverter converts chunks to a target format. It logs a warning on
// the first format mismatch. Create one per stream; not designed for shared
// use across goroutines.
type FormatConverter struct {
	Target         Format
	warnedMismatch sync.Once
}

// Convert converts c to the target format. If the source format already
// matches the target, c is returned unchanged (zero allocation).
// Conversion order: resample first, then channel convert.
func (fc *FormatConverter) Convert(c Chunk) Chunk {
	if c.Format == fc.Target {
		return c
	}

	fc.warnedMismatch.Do(func() {
		slog.Warn("audio format mismatch: converting",
			"from", c.Format.String(),
			"to", fc.Target.String(),
		)
	})

	// Step 1: Resample first (avoids resampling stereo when target is mono).
	if c.Format.SampleRate != fc.Target.SampleRate {
		c = Resample(c, fc.Target.SampleRate)
	}

	// Step 2: Channel conversion.
	if c.Format.Channels != fc.Target.Channels {
		switch {
		case c.Format.Channels == 1 && fc.Target.Channels == 2:
			c = MonoToStereo(c)
		case c.Format.Channels == 2 && fc.Target.Channels == 1:
			c = StereoToMono(c)
		default:
			c = remapChannels(c, fc.Target.Channels)
		}
	}
	return c
}

// MonoToStereo duplicates each mono sample into an L+R pair.
func MonoToStereo(c Chunk) Chunk {
	out := Chunk{Format: Format{SampleRate: c.Format.SampleRate, Channels: 2}, Samples: make([]float64, len(c.Samples)*2)}
	for i, s := range c.Samples {
		out.Samples[i*2] = s
		out.Samples[i*2+1] = s
	}
	return out
}

// StereoToMono averages L+R per stereo frame.
func StereoToMono(c Chunk) Chunk {
	frames := len(c.Samples) / 2
	out := Chunk{Format: Format{SampleRate: c.Format.SampleRate, Channels: 1}, Samples: make([]float64, frames)}
	for i := range frames {
		out.Samples[i] = (c.Samples[i*2] + c.Samples[i*2+1]) / 2
	}
	return out
}

// remapChannels keeps the first min(src, dst) channels and zero fills the rest.
func remapChannels(c Chunk, channels uint8) Chunk {
	out := NewChunk(Format{SampleRate: c.Format.SampleRate, Channels: channels}, c.Len())
	src, dst := int(c.Format.Channels), int(channels)
	for i := 0; i < c.Len(); i++ {
		for ch := 0; ch < min(src, dst); ch++ {
			out.Samples[i*dst+ch] = c.Samples[i*src+ch]
		}
	}
	return out
}

// Resample converts c to dstRate using linear interpolation. If the rates
// already match, c is returned unchanged.
func Resample(c Chunk, dstRate uint32) Chunk {
	srcRate := c.Format.SampleRate
	if srcRate == 0 || dstRate == 0 || srcRate == dstRate || c.Len() == 0 {
		return c
	}
	ch := int(c.Format.Channels)
	srcFrames := c.Len()
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	out := NewChunk(Format{SampleRate: dstRate, Channels: c.Format.Channels}, dstFrames)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for j := range ch {
			s0 := c.Samples[srcIdx*ch+j]
			s1 := c.Samples[next*ch+j]
			out.Samples[i*ch+j] = s0*(1-frac) + s1*frac
		}
	}
	return out
}

// ToPCM16 encodes c as little-endian int16 PCM, clamping to [-1, 1].
func ToPCM16(c Chunk) []byte {
	out := make([]byte, len(c.Samples)*2)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// PutFloat32 writes samples into dst as native-endian float32 values, the
// layout miniaudio expects for f32 devices. It returns the number of samples
// written.
func PutFloat32(dst []byte, samples []float64) int {
	n := min(len(dst)/4, len(samples))
	for i := range n {
		binary.NativeEndian.PutUint32(dst[i*4:], math.Float32bits(float32(samples[i])))
	}
	return n
}

func floatToInt16(s float64) int16 {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return int16(math.Round(s * 32767))
}
