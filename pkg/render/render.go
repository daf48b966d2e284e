// Package render produces video-frame-aligned audio for offline export.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/timeline"
)

// FrameRenderer pulls one [audio.Frame] per video frame from a composition.
// Frame n covers the sample frames [n*spf, (n+1)*spf) where spf is
// sampleRate / fps; the division remainder is not carried over.
type FrameRenderer struct {
	comp timeline.Composition
	info timeline.ProjectInfo
	spf  int64
}

// NewFrameRenderer validates info and returns a renderer over comp.
func NewFrameRenderer(comp timeline.Composition, info timeline.ProjectInfo) (*FrameRenderer, error) {
	if !info.Format.Valid() || info.FPS <= 0 {
		return nil, fmt.Errorf("render: %w: %s at %d fps", audio.ErrInvalidFormat, info.Format, info.FPS)
	}
	spf := int64(info.Format.SampleRate) / int64(info.FPS)
	if spf == 0 {
		return nil, fmt.Errorf("render: %w: fewer than one sample per frame", audio.ErrInvalidFormat)
	}
	return &FrameRenderer{comp: comp, info: info, spf: spf}, nil
}

// SamplesPerFrame returns the per-channel length of every rendered frame.
func (r *FrameRenderer) SamplesPerFrame() int64 { return r.spf }

// FrameCount returns the number of frames needed to cover the project
// length, or 0 for an unbounded project.
func (r *FrameRenderer) FrameCount() int64 {
	n := r.info.LengthSamples()
	return (n + r.spf - 1) / r.spf
}

// Frame renders video frame n.
func (r *FrameRenderer) Frame(ctx context.Context, n int64) (audio.Frame, error) {
	c, err := r.comp.GetAudioChunk(ctx, r.info.Format, n*r.spf, r.spf)
	if err != nil {
		return audio.Frame{}, fmt.Errorf("render: frame %d: %w", n, err)
	}
	return audio.FrameFromChunk(c, r.info.FPS)
}

// Range calls fn for every frame in [from, to), stopping at the first error.
// A non-nil error returned by fn is passed through unchanged.
func (r *FrameRenderer) Range(ctx context.Context, from, to int64, fn func(n int64, f audio.Frame) error) error {
	for n := from; n < to; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := r.Frame(ctx, n)
		if err != nil {
			return err
		}
		if err := fn(n, f); err != nil {
			return err
		}
	}
	return nil
}

// ErrUnbounded is returned by [FrameRenderer.WritePCM16] for projects without
// a length.
var ErrUnbounded = errors.New("render: project has no length")

// WritePCM16 renders the whole project as interleaved little-endian 16-bit
// PCM to w and returns the number of frames written.
func (r *FrameRenderer) WritePCM16(ctx context.Context, w io.Writer) (int64, error) {
	total := r.FrameCount()
	if total == 0 {
		return 0, ErrUnbounded
	}
	var written int64
	err := r.Range(ctx, 0, total, func(_ int64, f audio.Frame) error {
		if _, err := w.Write(audio.ToPCM16(audio.ChunkFromFrame(f))); err != nil {
			return fmt.Errorf("render: write: %w", err)
		}
		written++
		return nil
	})
	return written, err
}
