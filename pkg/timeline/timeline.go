// Package timeline defines the composition contract the playback and export
// paths pull audio from, and provides [Mixdown], a composition of clips
// placed on a shared timeline.
package timeline

import (
	"context"
	"time"

	"github.com/MrWong99/keyline/pkg/audio"
)

// Composition is a pull source of timeline audio.
//
// GetAudioChunk renders count sample frames starting at the absolute sample
// position start. Ranges may be requested in any order and more than once;
// for a fixed composition state the same arguments yield the same content.
type Composition interface {
	GetAudioChunk(ctx context.Context, format audio.Format, start, count int64) (audio.Chunk, error)
}

// CompositionFunc adapts a function to [Composition].
type CompositionFunc func(ctx context.Context, format audio.Format, start, count int64) (audio.Chunk, error)

func (f CompositionFunc) GetAudioChunk(ctx context.Context, format audio.Format, start, count int64) (audio.Chunk, error) {
	return f(ctx, format, start, count)
}

// ProjectInfo describes the session a composition is played in.
type ProjectInfo struct {
	Name string

	// Format is the output format of the session.
	Format audio.Format

	// FPS is the video frame rate used by the export path.
	FPS int

	// Length is the project duration. Zero means unbounded.
	Length time.Duration
}

// LengthSamples returns Length expressed in sample frames of Format.
func (p ProjectInfo) LengthSamples() int64 {
	return durationSamples(p.Length, p.Format.SampleRate)
}

func durationSamples(d time.Duration, rate uint32) int64 {
	return int64(d.Seconds()*float64(rate) + 0.5)
}
