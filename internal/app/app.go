// Package app wires the keyline subsystems into a running player.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run streams the demo composition until the context ends, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithMeterProvider,
// WithMetrics, etc.). When an option is not provided, New uses the global
// OpenTelemetry providers.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/keyline/internal/config"
	"github.com/MrWong99/keyline/internal/health"
	"github.com/MrWong99/keyline/internal/observe"
	"github.com/MrWong99/keyline/internal/resilience"
	"github.com/MrWong99/keyline/pkg/audio/effect"
	"github.com/MrWong99/keyline/pkg/interp"
	"github.com/MrWong99/keyline/pkg/playback"
	"github.com/MrWong99/keyline/pkg/timeline"
)

// shutdownGrace bounds the HTTP server's graceful shutdown.
const shutdownGrace = 5 * time.Second

// StatsSink is implemented by sinks that report device counters.
type StatsSink interface {
	FramesPlayed() int64
	Underruns() int64
}

// Status is the /statusz snapshot.
type Status struct {
	Project       string `json:"project"`
	Output        string `json:"output"`
	Playing       bool   `json:"playing"`
	CurrentSample int64  `json:"current_sample"`
	Queued        int64  `json:"queued"`
	Played        int64  `json:"played"`
	Clips         int    `json:"clips"`
}

// App owns all subsystem lifetimes.
type App struct {
	cfg   *config.Config
	sinks *config.Registry

	mp       metric.MeterProvider
	metrics  *observe.Metrics
	level    *slog.LevelVar
	metricsH http.Handler

	// Subsystems, initialised in New and torn down in Shutdown.
	queue   *playback.Queue
	sink    config.Sink
	player  *playback.Player
	effects *effect.Registry
	logics  *interp.Registry
	server  *http.Server
	ln      net.Listener

	mu   sync.Mutex
	comp *timeline.Mixdown
	info timeline.ProjectInfo

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMeterProvider sets the meter provider for player instruments.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *App) { a.mp = mp }
}

// WithMetrics injects the host metrics instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar sets the level variable adjusted on config reloads.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsH = h }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The sink factory for
// cfg.Output.Device must be registered in sinks.
//
// New binds the HTTP listener when server.listen_addr is set, so address
// errors surface here rather than in Run.
func New(ctx context.Context, cfg *config.Config, sinks *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		sinks:   sinks,
		effects: effect.NewRegistry(),
		logics:  interp.NewRegistry(cfg.Sandbox),
	}
	for _, o := range opts {
		o(a)
	}
	if a.mp == nil {
		a.mp = otel.GetMeterProvider()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Composition ───────────────────────────────────────────────────
	comp, info, err := BuildComposition(cfg, a.effects, a.logics)
	if err != nil {
		return nil, err
	}
	a.comp, a.info = comp, info

	// ── 2. Output ────────────────────────────────────────────────────────
	a.queue = playback.NewQueue()
	a.sink, err = sinks.Create(cfg.Output, a.queue, info.Format)
	if err != nil {
		return nil, fmt.Errorf("app: create %s output: %w", cfg.Output.Device, err)
	}
	if c, ok := a.sink.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	if s, ok := a.sink.(StatsSink); ok {
		unregister, err := a.metrics.ObserveDevice(string(cfg.Output.Device), func() (int64, int64) {
			return s.FramesPlayed(), s.Underruns()
		})
		if err != nil {
			return nil, fmt.Errorf("app: observe device: %w", err)
		}
		a.closers = append(a.closers, unregister)
	}

	// ── 3. Player ────────────────────────────────────────────────────────
	a.player, err = playback.NewPlayer(a.queue,
		playback.WithTargetBuffer(cfg.Playback.TargetBuffer),
		playback.WithIdleInterval(cfg.Playback.IdleInterval),
		playback.WithChunkSize(cfg.Playback.ChunkSize),
		playback.WithMeterProvider(a.mp),
		playback.WithDiagnostics(a.diagnose),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create player: %w", err)
	}
	a.closers = append(a.closers, a.player.Close)

	// ── 4. HTTP server ───────────────────────────────────────────────────
	if cfg.Server.ListenAddr != "" {
		var lc net.ListenConfig
		a.ln, err = lc.Listen(ctx, "tcp", cfg.Server.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("app: listen %s: %w", cfg.Server.ListenAddr, err)
		}
		a.server = &http.Server{
			Handler:           observe.Middleware(a.metrics)(a.Handler()),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

// Handler returns the HTTP routes: health, status, metrics, and the output
// sink when it serves HTTP itself.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()

	checks := []health.Checker{
		health.Probe("output", a.sink.Healthy),
		{Name: "player", Check: func(context.Context) error {
			if !a.player.IsPlaying() {
				return errors.New("not playing")
			}
			return nil
		}},
	}
	if s, ok := a.sink.(StatsSink); ok {
		checks = append(checks, health.UnderrunBudget("underruns", s.Underruns, 50))
	}
	health.New(checks...).WithStatus(func() any { return a.Status() }).Register(mux)

	if a.metricsH != nil {
		mux.Handle("GET /metrics", a.metricsH)
	}
	if h, ok := a.sink.(http.Handler); ok {
		mux.Handle("GET "+a.cfg.Output.Monitor.Path, h)
	}
	return mux
}

// Addr returns the bound HTTP address, or nil without a server.
func (a *App) Addr() net.Addr {
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Player returns the playback coordinator.
func (a *App) Player() *playback.Player { return a.player }

// Status returns a snapshot of the playback state.
func (a *App) Status() Status {
	a.mu.Lock()
	info, clips := a.info, len(a.comp.Clips())
	a.mu.Unlock()

	st := Status{
		Project:       info.Name,
		Output:        string(a.cfg.Output.Device),
		Playing:       a.player.IsPlaying(),
		CurrentSample: a.player.CurrentSample(),
		Queued:        a.queue.QueuedSampleCount(),
		Played:        a.queue.ReadSampleCount(),
		Clips:         clips,
	}
	return st
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the output sink, the HTTP server, and playback from the first
// sample, and blocks until ctx is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		device := string(a.cfg.Output.Device)
		policy := resilience.Policy{
			Name: "output/" + device,
			OnRestart: func(int, error) {
				a.metrics.RecordOutputRestart(context.WithoutCancel(gctx), device)
			},
		}
		if err := resilience.Supervise(gctx, policy, a.sink.Run); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: output: %w", err)
		}
		return nil
	})

	if a.server != nil {
		g.Go(func() error {
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				slog.Info("https server listening", "addr", a.ln.Addr().String())
				err = a.server.ServeTLS(a.ln, tls.CertFile, tls.KeyFile)
			} else {
				slog.Info("http server listening", "addr", a.ln.Addr().String())
				err = a.server.Serve(a.ln)
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownGrace)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	a.mu.Lock()
	comp, info := a.comp, a.info
	a.mu.Unlock()
	if err := a.player.Play(comp, info, 0, 1); err != nil {
		return fmt.Errorf("app: play: %w", err)
	}
	slog.Info("playback started",
		"project", info.Name,
		"format", info.Format.String(),
		"length", info.Length,
		"output", a.cfg.Output.Device,
	)

	g.Go(func() error {
		<-gctx.Done()
		a.player.Pause()
		return nil
	})

	return g.Wait()
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable parts of a config change. Log level
// changes take effect immediately; a changed demo is rebuilt and playback
// resumes at the current position.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "sections", d.RestartRequired)
	}
	if !d.DemoChanged {
		return
	}

	// The running session keeps its startup format and sandbox limits.
	cfg := *new
	cfg.Playback = a.cfg.Playback
	comp, info, err := BuildComposition(&cfg, a.effects, a.logics)
	if err != nil {
		slog.Error("demo reload failed", "err", err)
		return
	}

	a.mu.Lock()
	a.comp, a.info = comp, info
	a.mu.Unlock()

	if !a.player.IsPlaying() {
		return
	}
	pos := a.player.CurrentSample()
	a.player.Pause()
	if err := a.player.Play(comp, info, pos, a.player.Speed()); err != nil {
		slog.Error("resume after demo reload failed", "err", err)
		return
	}
	slog.Info("demo reloaded", "tones", len(d.ToneChanges), "resume_at", pos)
}

// diagnose is the player's failure sink.
func (a *App) diagnose(err error) {
	ctx := context.Background()
	var ee *interp.EvaluationError
	if errors.As(err, &ee) {
		a.metrics.RecordInterpolationError(ctx, ee.Logic)
	}
	slog.Error("playback stopped", "err", err)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in init order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("http shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SlogLevel converts a config log level to its slog counterpart.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
