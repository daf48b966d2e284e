// Package audio defines the sample model shared by every audio path in
// Keyline: the session-wide [Format], the fixed-size per-video-frame [Frame]
// used by the export renderer, and the variable-length [Chunk] used for
// streaming playback.
//
// All samples are float64, channel-interleaved. Values are treated as
// immutable by convention: every operation in this package returns a new
// value and leaves its inputs untouched.
package audio

import "fmt"

// Format describes the sample rate and channel count of an audio stream.
// A Format is shared by value across all chunks produced within one playback
// or render session and never changes after construction.
type Format struct {
	SampleRate uint32
	Channels   uint8
}

// Valid reports whether f has a positive sample rate and channel count.
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// String returns a human-readable form, e.g. "44100Hz stereo".
func (f Format) String() string {
	return formatString(int(f.SampleRate), int(f.Channels))
}

// Frame holds exactly one video frame's worth of interleaved samples.
//
// The per-channel length is SampleRate / FPS using integer division; the
// remainder is dropped, not redistributed over later frames.
type Frame struct {
	Channels   int
	SampleRate int
	FPS        int

	// Samples has length SampleCount() and is channel-interleaved.
	Samples []float64
}

// SampleCount returns the number of interleaved samples a frame of this shape
// holds: channels * (sampleRate / fps).
func (f Frame) SampleCount() int {
	return frameSampleCount(f.Channels, f.SampleRate, f.FPS)
}

// SamplesPerChannel returns sampleRate / fps.
func (f Frame) SamplesPerChannel() int {
	if f.FPS <= 0 {
		return 0
	}
	return f.SampleRate / f.FPS
}

// Format returns the stream format the frame was rendered at.
func (f Frame) Format() Format {
	return Format{SampleRate: uint32(f.SampleRate), Channels: uint8(f.Channels)}
}

func (f Frame) sameShape(o Frame) bool {
	return f.Channels == o.Channels && f.SampleRate == o.SampleRate && f.FPS == o.FPS
}

func (f Frame) shapeString() string {
	return fmt.Sprintf("%s@%dfps", formatString(f.SampleRate, f.Channels), f.FPS)
}

// Chunk is an arbitrary-length run of interleaved samples tied to a Format.
// len(Samples) is always a multiple of Format.Channels.
type Chunk struct {
	Format  Format
	Samples []float64
}

// Len returns the number of sample frames (samples per channel) in c.
func (c Chunk) Len() int {
	if c.Format.Channels == 0 {
		return 0
	}
	return len(c.Samples) / int(c.Format.Channels)
}

// Empty reports whether c carries no samples.
func (c Chunk) Empty() bool {
	return len(c.Samples) == 0
}

func frameSampleCount(channels, sampleRate, fps int) int {
	if fps <= 0 || channels <= 0 || sampleRate <= 0 {
		return 0
	}
	return channels * (sampleRate / fps)
}

// formatString returns a human-readable string for a sample rate and channel count,
// e.g. "48000Hz stereo".
func formatString(rate, channels int) string {
	ch := "mono"
	if channels == 2 {
		ch = "stereo"
	} else if channels > 2 {
		ch = fmt.Sprintf("%dch", channels)
	}
	return fmt.Sprintf("%dHz %s", rate, ch)
}
