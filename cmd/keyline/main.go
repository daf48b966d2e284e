// Command keyline streams a configured demo composition to an audio output,
// or renders it offline to raw PCM.
//
// Usage:
//
//	keyline [play] -config keyline.yaml
//	keyline export -config keyline.yaml -out demo.pcm
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MrWong99/keyline/internal/app"
	"github.com/MrWong99/keyline/internal/config"
	"github.com/MrWong99/keyline/internal/observe"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "play"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "play":
		return runPlay(args)
	case "export":
		return runExport(args)
	default:
		fmt.Fprintf(os.Stderr, "keyline: unknown command %q (want play or export)\n", cmd)
		return 2
	}
}

// loadConfig loads and reports the configuration file at path.
func loadConfig(path string) (*config.Config, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "keyline: config file %q not found, copy configs/example.yaml to get started\n", path)
		} else {
			fmt.Fprintf(os.Stderr, "keyline: %v\n", err)
		}
		return nil, false
	}
	return cfg, true
}

// ── play ─────────────────────────────────────────────────────────────────────

func runPlay(args []string) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	fs := flag.NewFlagSet("play", flag.ContinueOnError)
	configPath := fs.String("config", "keyline.yaml", "path to the YAML configuration file")
	watch := fs.Bool("watch", true, "reload the configuration file when it changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("keyline starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(provider.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Output registry ───────────────────────────────────────────────────────
	sinks := config.NewRegistry()
	registerBuiltinSinks(sinks, metrics)

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(os.Stdout, cfg)

	application, err := app.New(ctx, cfg, sinks,
		app.WithMeterProvider(provider.MeterProvider),
		app.WithMetrics(metrics),
		app.WithLevelVar(level),
		app.WithMetricsHandler(provider.Handler()),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath,
			func(old, new *config.Config) {
				metrics.RecordConfigReload(ctx, nil)
				application.Reload(old, new)
			},
			config.WithErrorHandler(func(err error) {
				metrics.RecordConfigReload(ctx, err)
			}),
		)
		if err != nil {
			slog.Error("failed to start config watcher", "err", err)
			return 1
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Warn("config watcher stopped", "err", err)
			}
		}()
	}

	slog.Info("player ready, press Ctrl+C to stop")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		_ = application.Shutdown(context.Background())
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── export ───────────────────────────────────────────────────────────────────

func runExport(args []string) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", "keyline.yaml", "path to the YAML configuration file")
	out := fs.String("out", "", "output file for raw s16le PCM (\"-\" for stdout)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *out == "" {
		fmt.Fprintln(os.Stderr, "keyline: export requires -out")
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			slog.Error("failed to create output", "path", *out, "err", err)
			return 1
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)

	res, err := app.Export(ctx, cfg, bw, nil)
	if err != nil {
		slog.Error("export failed", "err", err)
		return 1
	}
	if err := bw.Flush(); err != nil {
		slog.Error("failed to flush output", "err", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "wrote %d frames (%d bytes, %s) of %q in %s\n",
		res.Frames, res.Bytes, res.Info.Format, res.Info.Name, res.Duration.Round(time.Millisecond))
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║         Keyline · startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printRow(w, "Project", cfg.Demo.Name)
	printRow(w, "Format", app.Format(cfg).String())
	printRow(w, "Frame rate", fmt.Sprintf("%d fps", cfg.Playback.FPS))
	printRow(w, "Target buffer", cfg.Playback.TargetBuffer.String())
	printRow(w, "Output", string(cfg.Output.Device))
	printRow(w, "Tones", fmt.Sprintf("%d", len(cfg.Demo.Tones)))
	if cfg.Server.ListenAddr != "" {
		printRow(w, "Listen addr", cfg.Server.ListenAddr)
	}
	if cfg.Output.Device == config.OutputMonitor {
		printRow(w, "Monitor path", cfg.Output.Monitor.Path)
	}
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printRow(w io.Writer, label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Fprintf(w, "║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
