package audio

import "math"

// Sine is a continuous sine tone. It renders both per-video-frame buffers for
// export and arbitrary sample ranges for streaming, always from the absolute
// sample position so that consecutive requests are phase-continuous.
type Sine struct {
	// Frequency of the tone in Hz.
	Frequency float64

	// Amplitude is the peak sample value. Zero means 1.0.
	Amplitude float64
}

func (s Sine) amplitude() float64 {
	if s.Amplitude == 0 {
		return 1
	}
	return s.Amplitude
}

func (s Sine) sampleAt(pos int64, rate int) float64 {
	return s.amplitude() * math.Sin(2*math.Pi*s.Frequency*float64(pos)/float64(rate))
}

// Frame renders video frame frameIndex at the given shape. Every channel of a
// sample frame carries the same value.
func (s Sine) Frame(channels, sampleRate, fps int, frameIndex int64) (Frame, error) {
	f, err := CreateSilence(channels, sampleRate, fps)
	if err != nil {
		return Frame{}, err
	}
	n := f.SamplesPerChannel()
	start := frameIndex * int64(n)
	for i := range n {
		v := s.sampleAt(start+int64(i), sampleRate)
		for ch := range channels {
			f.Samples[i*channels+ch] = v
		}
	}
	return f, nil
}

// Chunk renders count sample frames starting at absolute sample start.
func (s Sine) Chunk(f Format, start, count int64) Chunk {
	c := NewChunk(f, int(count))
	ch := int(f.Channels)
	for i := 0; i < int(count); i++ {
		v := s.sampleAt(start+int64(i), int(f.SampleRate))
		for j := range ch {
			c.Samples[i*ch+j] = v
		}
	}
	return c
}
