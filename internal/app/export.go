package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MrWong99/keyline/internal/config"
	"github.com/MrWong99/keyline/internal/observe"
	"github.com/MrWong99/keyline/pkg/audio/effect"
	"github.com/MrWong99/keyline/pkg/interp"
	"github.com/MrWong99/keyline/pkg/render"
	"github.com/MrWong99/keyline/pkg/timeline"
)

// ExportResult summarises a finished export.
type ExportResult struct {
	Info     timeline.ProjectInfo
	Frames   int64
	Bytes    int64
	Duration time.Duration
}

// Export renders the demo project of cfg frame by frame and writes it to w as
// interleaved little-endian 16-bit PCM. A nil m uses [observe.DefaultMetrics].
func Export(ctx context.Context, cfg *config.Config, w io.Writer, m *observe.Metrics, opts ...timeline.Option) (ExportResult, error) {
	if m == nil {
		m = observe.DefaultMetrics()
	}

	comp, info, err := BuildComposition(cfg, effect.NewRegistry(), interp.NewRegistry(cfg.Sandbox), opts...)
	if err != nil {
		return ExportResult{}, err
	}
	r, err := render.NewFrameRenderer(comp, info)
	if err != nil {
		return ExportResult{}, fmt.Errorf("app: export: %w", err)
	}

	ctx, span := observe.StartSpan(ctx, "app.Export")
	defer span.End()
	log := observe.Logger(ctx)

	cw := &countingWriter{w: w}
	start := time.Now()
	frames, err := r.WritePCM16(ctx, cw)
	elapsed := time.Since(start)
	res := ExportResult{Info: info, Frames: frames, Bytes: cw.n, Duration: elapsed}
	if err != nil {
		log.Error("export failed", "frames", frames, "err", err)
		return res, fmt.Errorf("app: export: %w", err)
	}

	m.RecordExport(ctx, elapsed.Seconds(), frames)
	log.Info("export complete",
		slog.String("project", info.Name),
		slog.Int64("frames", frames),
		slog.Int64("bytes", cw.n),
		slog.Duration("elapsed", elapsed),
	)
	return res, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
