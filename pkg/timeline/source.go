package timeline

import (
	"context"
	"sync"

	"github.com/MrWong99/keyline/pkg/audio"
)

// Source renders the raw audio of one clip. Positions are object-local
// sample frames, 0 being the clip's first sample.
type Source interface {
	Render(ctx context.Context, format audio.Format, start, count int64) (audio.Chunk, error)
}

// SineSource renders a continuous tone.
type SineSource struct {
	audio.Sine
}

func (s SineSource) Render(_ context.Context, format audio.Format, start, count int64) (audio.Chunk, error) {
	return s.Chunk(format, start, count), nil
}

// BufferSource plays back decoded PCM held in memory. The buffer is converted
// to the requested format on first use and the result is cached per format.
// Positions past the end of the buffer render silence.
type BufferSource struct {
	pcm audio.Chunk

	mu        sync.Mutex
	converted map[audio.Format]audio.Chunk
}

// NewBufferSource wraps pcm. The chunk must not be modified afterwards.
func NewBufferSource(pcm audio.Chunk) *BufferSource {
	return &BufferSource{pcm: pcm, converted: make(map[audio.Format]audio.Chunk)}
}

func (b *BufferSource) Render(_ context.Context, format audio.Format, start, count int64) (audio.Chunk, error) {
	src := b.in(format)
	out := audio.NewChunk(format, int(count))
	if start >= int64(src.Len()) || start+count <= 0 {
		return out, nil
	}
	part := src.Slice(int(max(start, 0)), int(start+count))
	return audio.MixChunks(out, part, int(max(-start, 0)))
}

func (b *BufferSource) in(format audio.Format) audio.Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.converted[format]; ok {
		return c
	}
	conv := &audio.FormatConverter{Target: format}
	c := conv.Convert(b.pcm)
	b.converted[format] = c
	return c
}
