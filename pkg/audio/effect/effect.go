// Package effect implements the per-object audio effect pipeline.
//
// An [Effect] transforms one [audio.Chunk] given a [Context] that locates the
// chunk inside the owning object's lifetime. Effects never mutate their input;
// a [Chain] applies the active effects of an object in order.
package effect

import (
	"fmt"

	"github.com/MrWong99/keyline/pkg/audio"
)

// Context locates a chunk within the owning object's total duration.
// A fresh Context is built by the caller for every effect invocation and is
// read-only to the effect.
type Context struct {
	Format audio.Format

	// ObjectDuration is the owning object's total duration in seconds.
	ObjectDuration float64

	// Position is the absolute sample-frame offset of the chunk's first
	// sample within the object.
	Position int64
}

// TotalSamples returns the object's duration expressed in sample frames.
func (c Context) TotalSamples() float64 {
	return c.ObjectDuration * float64(c.Format.SampleRate)
}

// Effect is a chunk transform attached to a timeline object.
//
// Active is advisory: implementations do not check it themselves, the owner
// of the pipeline ([Chain]) skips inactive effects.
type Effect interface {
	// ID is the stable type key used by a [Registry].
	ID() string

	// Active reports whether the pipeline should apply this effect.
	Active() bool

	// Apply returns the transformed chunk. It must not modify in.
	Apply(in audio.Chunk, ctx Context) (audio.Chunk, error)

	// Clone returns an independent copy carrying the same configuration.
	Clone() Effect
}

// Chain is an ordered list of effects owned by one timeline object.
type Chain []Effect

// Apply runs every active effect of the chain over in. Each effect receives
// its own copy of ctx.
func (c Chain) Apply(in audio.Chunk, ctx Context) (audio.Chunk, error) {
	out := in
	for _, e := range c {
		if e == nil || !e.Active() {
			continue
		}
		next, err := e.Apply(out, ctx)
		if err != nil {
			return audio.Chunk{}, fmt.Errorf("effect %s: %w", e.ID(), err)
		}
		out = next
	}
	return out, nil
}

// Clone returns a deep copy of the chain.
func (c Chain) Clone() Chain {
	if c == nil {
		return nil
	}
	out := make(Chain, len(c))
	for i, e := range c {
		if e != nil {
			out[i] = e.Clone()
		}
	}
	return out
}

func checkFormat(op string, in audio.Chunk, ctx Context) error {
	if in.Format != ctx.Format {
		return &audio.FormatMismatchError{Op: op, Left: in.Format.String(), Right: ctx.Format.String()}
	}
	return nil
}
