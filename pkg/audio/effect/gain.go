package effect

import (
	"fmt"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/interp"
)

// GainID is the registry key of [Gain].
const GainID = "gain"

var _ Effect = (*Gain)(nil)

// Gain scales the chunk by a constant factor. When Envelope is set its value
// at each object-local sample frame is multiplied in as well.
type Gain struct {
	Gain     float64
	Envelope *interp.Track
	Bypass   bool
}

func (g *Gain) ID() string { return GainID }

func (g *Gain) Active() bool { return !g.Bypass }

func (g *Gain) Clone() Effect {
	c := *g
	c.Envelope = g.Envelope.HardCopy()
	return &c
}

// Apply implements [Effect].
func (g *Gain) Apply(in audio.Chunk, ctx Context) (audio.Chunk, error) {
	if in.Empty() {
		return in, nil
	}
	if err := checkFormat("gain", in, ctx); err != nil {
		return audio.Chunk{}, err
	}
	if g.Envelope == nil || g.Envelope.Len() == 0 {
		return audio.ScaleChunk(in, g.Gain), nil
	}

	ch := int(in.Format.Channels)
	out := audio.Chunk{Format: in.Format, Samples: make([]float64, len(in.Samples))}
	for i := 0; i < in.Len(); i++ {
		env, err := g.Envelope.ValueAt(ctx.Position + int64(i))
		if err != nil {
			return audio.Chunk{}, fmt.Errorf("gain envelope at %d: %w", ctx.Position+int64(i), err)
		}
		m := g.Gain * env
		for c := 0; c < ch; c++ {
			out.Samples[i*ch+c] = in.Samples[i*ch+c] * m
		}
	}
	return out, nil
}
