// Package monitor streams a [playback.Queue] to WebSocket listeners in real
// time.
//
// A [Monitor] is an output device for headless hosts: its pacer drains the
// queue at the stream's sample rate, as a sound card would, and fans the
// audio out as little-endian 16-bit PCM binary messages. Each connection
// first receives a JSON text message describing the stream.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/keyline/pkg/audio"
	"github.com/MrWong99/keyline/pkg/playback"
)

const (
	// DefaultPeriod is the pacer interval.
	DefaultPeriod = 20 * time.Millisecond

	// listenerBuffer is the number of periods buffered per listener before
	// further audio is dropped for it.
	listenerBuffer = 32

	writeTimeout = 5 * time.Second
)

// Header is the first message sent on every connection.
type Header struct {
	SampleRate uint32 `json:"sample_rate"`
	Channels   uint8  `json:"channels"`
	Encoding   string `json:"encoding"`
}

// Option configures a [Monitor].
type Option func(*Monitor)

// WithPeriod sets the pacer interval. Default: [DefaultPeriod].
func WithPeriod(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.period = d
		}
	}
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.log = l
		}
	}
}

// WithOriginPatterns sets the host patterns accepted for cross-origin
// connections. See [websocket.AcceptOptions].
func WithOriginPatterns(patterns ...string) Option {
	return func(m *Monitor) { m.origins = patterns }
}

// WithListenerObserver sets a callback invoked with +1 and -1 as listeners
// connect and disconnect.
func WithListenerObserver(fn func(delta int64)) Option {
	return func(m *Monitor) { m.observe = fn }
}

type listener struct {
	ch chan []byte
}

// Monitor paces a queue and broadcasts it to WebSocket listeners. It
// implements [http.Handler].
type Monitor struct {
	queue   *playback.Queue
	format  audio.Format
	period  time.Duration
	log     *slog.Logger
	origins []string
	observe func(delta int64)

	mu        sync.Mutex
	listeners map[*listener]struct{}

	running atomic.Bool
	frames  atomic.Int64
	dropped atomic.Int64
}

// New returns a monitor draining q, which carries audio in format.
func New(q *playback.Queue, format audio.Format, opts ...Option) (*Monitor, error) {
	if q == nil {
		return nil, errors.New("monitor: nil queue")
	}
	if !format.Valid() {
		return nil, audio.ErrInvalidFormat
	}
	m := &Monitor{
		queue:     q,
		format:    format,
		period:    DefaultPeriod,
		log:       slog.Default(),
		listeners: make(map[*listener]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Run drains the queue once per period until ctx is cancelled. It always
// returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	perTick := max(int(m.period.Seconds()*float64(m.format.SampleRate)), 1)
	buf := make([]float64, perTick*int(m.format.Channels))

	m.running.Store(true)
	defer m.running.Store(false)

	ticker := time.NewTicker(m.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		n := m.queue.Read(buf)
		if n == 0 {
			continue
		}
		m.frames.Add(int64(n / int(m.format.Channels)))
		m.broadcast(audio.ToPCM16(audio.Chunk{Format: m.format, Samples: buf[:n]}))
	}
}

func (m *Monitor) broadcast(pcm []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for l := range m.listeners {
		select {
		case l.ch <- pcm:
		default:
			m.dropped.Add(1)
		}
	}
}

func (m *Monitor) subscribe() *listener {
	l := &listener{ch: make(chan []byte, listenerBuffer)}
	m.mu.Lock()
	m.listeners[l] = struct{}{}
	if m.observe != nil {
		m.observe(1)
	}
	m.mu.Unlock()
	return l
}

func (m *Monitor) unsubscribe(l *listener) {
	m.mu.Lock()
	delete(m.listeners, l)
	if m.observe != nil {
		m.observe(-1)
	}
	m.mu.Unlock()
}

// Listeners returns the number of connected listeners.
func (m *Monitor) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Healthy reports whether the pacer is running.
func (m *Monitor) Healthy() bool { return m.running.Load() }

// FramesPlayed returns the number of sample frames drained by the pacer.
func (m *Monitor) FramesPlayed() int64 { return m.frames.Load() }

// Dropped returns the number of messages not delivered to slow listeners.
func (m *Monitor) Dropped() int64 { return m.dropped.Load() }

// ServeHTTP upgrades the request and streams audio until the client goes
// away.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: m.origins})
	if err != nil {
		m.log.Warn("monitor: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	defer c.CloseNow()

	// Listeners never send; CloseRead handles control frames.
	ctx := c.CloseRead(r.Context())

	l := m.subscribe()
	defer m.unsubscribe(l)
	m.log.Info("monitor listener connected", "remote", r.RemoteAddr)

	hdr := Header{SampleRate: m.format.SampleRate, Channels: m.format.Channels, Encoding: "pcm_s16le"}
	if err := m.write(ctx, func(ctx context.Context) error { return wsjson.Write(ctx, c, hdr) }); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case pcm := <-l.ch:
			if err := m.write(ctx, func(ctx context.Context) error {
				return c.Write(ctx, websocket.MessageBinary, pcm)
			}); err != nil {
				m.log.Debug("monitor listener gone", "remote", r.RemoteAddr, "err", err)
				return
			}
		}
	}
}

func (m *Monitor) write(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return fn(ctx)
}
