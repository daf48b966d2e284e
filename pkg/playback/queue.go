// Package playback streams a timeline composition to an output device ahead
// of real time.
//
// A [Player] runs one background production task per playback session. The
// task pulls contiguous chunks from a [timeline.Composition] and appends them
// to an [OutputDevice] until the device holds a target depth of audio, then
// idles and tops the queue up as the consumer drains it. Flow control comes
// solely from comparing the queued depth with the target; the producer never
// blocks on a full device.
package playback

import (
	"sync"

	"github.com/MrWong99/keyline/pkg/audio"
)

// OutputDevice is the sink a [Player] feeds. Implementations must be safe for
// concurrent use by one producer and one consumer.
type OutputDevice interface {
	// ClearQueue discards all queued, unplayed audio.
	ClearQueue()

	// InsertQueue appends c to the end of the queue.
	InsertQueue(c audio.Chunk) error

	// QueuedSampleCount returns the number of queued sample frames.
	QueuedSampleCount() int64
}

var _ OutputDevice = (*Queue)(nil)

// Queue is an in-memory FIFO [OutputDevice]. Consumers pull interleaved
// samples with [Queue.Read]; partially consumed chunks keep their remainder
// at the head of the queue.
//
// All methods are safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	chunks []audio.Chunk
	head   int // samples of chunks[0] already read
	queued int64
	format audio.Format
	read   int64
	notify chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// ClearQueue implements [OutputDevice].
func (q *Queue) ClearQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = nil
	q.head = 0
	q.queued = 0
}

// InsertQueue implements [OutputDevice]. Empty chunks are ignored. A chunk
// whose format differs from the queued audio is rejected with an
// [*audio.FormatMismatchError].
func (q *Queue) InsertQueue(c audio.Chunk) error {
	if c.Empty() {
		return nil
	}
	q.mu.Lock()
	if len(q.chunks) > 0 && c.Format != q.format {
		q.mu.Unlock()
		return &audio.FormatMismatchError{Op: "enqueue", Left: q.format.String(), Right: c.Format.String()}
	}
	q.format = c.Format
	q.chunks = append(q.chunks, c)
	q.queued += int64(c.Len())
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// QueuedSampleCount implements [OutputDevice].
func (q *Queue) QueuedSampleCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queued
}

// Format returns the format of the most recently inserted chunk.
func (q *Queue) Format() audio.Format {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.format
}

// Read copies up to len(dst) interleaved samples from the head of the queue
// into dst and returns the number copied. It never blocks. Callers should
// size dst as a multiple of the channel count; a trailing partial frame is
// left unread.
func (q *Queue) Read(dst []float64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := int(q.format.Channels)
	if ch == 0 {
		return 0
	}
	want := len(dst) - len(dst)%ch
	n := 0
	for n < want && len(q.chunks) > 0 {
		c := q.chunks[0]
		k := copy(dst[n:want], c.Samples[q.head:])
		n += k
		q.head += k
		if q.head >= len(c.Samples) {
			q.chunks[0] = audio.Chunk{}
			q.chunks = q.chunks[1:]
			q.head = 0
		}
	}
	frames := int64(n / ch)
	q.queued -= frames
	q.read += frames
	return n
}

// ReadSampleCount returns the total number of sample frames consumed through
// Read since the queue was created.
func (q *Queue) ReadSampleCount() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.read
}

// Notify returns a channel that receives a value after chunks are inserted.
// Only one pending notification is buffered.
func (q *Queue) Notify() <-chan struct{} { return q.notify }
