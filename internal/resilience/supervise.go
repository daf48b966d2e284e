// Package resilience restarts failing long-running tasks, such as output
// sinks, under a bounded restart budget.
//
// [Supervise] re-runs a task with exponential backoff until it returns
// cleanly, its context ends, or it fails more than [Policy.MaxRestarts]
// times within [Policy.Window]. Once the budget is spent the last failure is
// returned wrapped in [ErrBudgetExhausted].
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrBudgetExhausted is returned by [Supervise] when a task keeps failing.
var ErrBudgetExhausted = errors.New("restart budget exhausted")

// Policy holds tuning knobs for [Supervise].
type Policy struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxRestarts is the number of restarts allowed within Window.
	// Default: 5.
	MaxRestarts int

	// Window is the sliding interval failures are counted over. A run that
	// lasts longer than Window also resets the backoff. Default: 1m.
	Window time.Duration

	// Backoff is the delay before the first restart. It doubles after every
	// consecutive failure up to MaxBackoff. Default: 100ms.
	Backoff time.Duration

	// MaxBackoff caps the restart delay. Default: 5s.
	MaxBackoff time.Duration

	// OnRestart, when set, is called before every restart with the attempt
	// number (starting at 1) and the failure that caused it.
	OnRestart func(attempt int, err error)
}

func (p Policy) withDefaults() Policy {
	if p.MaxRestarts <= 0 {
		p.MaxRestarts = 5
	}
	if p.Window <= 0 {
		p.Window = time.Minute
	}
	if p.Backoff <= 0 {
		p.Backoff = 100 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 5 * time.Second
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	return p
}

// newBackOff returns the restart delay schedule of p: Backoff doubling up to
// MaxBackoff, without jitter and without an elapsed-time cap.
func (p Policy) newBackOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.Backoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         p.MaxBackoff,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// Supervise runs task until it returns nil or ctx is cancelled, restarting it
// after failures. It returns nil on a clean exit, ctx.Err() after
// cancellation, and an [ErrBudgetExhausted] error once more than
// MaxRestarts failures happened within Window.
//
// A task returning an error after ctx is done is treated as cancelled.
func Supervise(ctx context.Context, p Policy, task func(context.Context) error) error {
	p = p.withDefaults()

	var (
		failures []time.Time
		delays   = p.newBackOff()
		attempt  int
	)
	for {
		started := time.Now()
		err := task(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		now := time.Now()
		if now.Sub(started) >= p.Window {
			delays.Reset()
		}
		failures = append(pruned(failures, now.Add(-p.Window)), now)
		if len(failures) > p.MaxRestarts {
			slog.Error("task failed too often, giving up",
				"name", p.Name,
				"failures", len(failures),
				"window", p.Window,
				"err", err)
			return fmt.Errorf("%w: %s: %w", ErrBudgetExhausted, p.Name, err)
		}

		attempt++
		delay := delays.NextBackOff()
		slog.Warn("task failed, restarting",
			"name", p.Name,
			"attempt", attempt,
			"backoff", delay,
			"err", err)
		if p.OnRestart != nil {
			p.OnRestart(attempt, err)
		}

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// pruned drops the timestamps before cutoff. ts is sorted ascending.
func pruned(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && ts[i].Before(cutoff) {
		i++
	}
	return ts[i:]
}
