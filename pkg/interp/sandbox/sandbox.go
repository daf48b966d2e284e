// Package sandbox evaluates user-supplied interpolation scripts under hard
// resource limits.
//
// The capability is deliberately narrow: a script sees exactly five numeric
// inputs ([Inputs]) plus a private copy of the Lua math library without
// math.random and math.randomseed, and must return a number. It has no
// access to I/O, the host environment or any state from previous
// evaluations, so equal inputs always yield equal results. Three independent
// bounds apply to every evaluation: an instruction budget, a call-depth limit
// and a wall-clock timeout (see [Limits]).
//
// There is no separate memory limit. String concatenation is rejected at
// compile time, which leaves allocation proportional to the instruction
// budget.
package sandbox

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCompile is returned when the script source cannot be compiled.
	ErrCompile = errors.New("sandbox: compile failed")

	// ErrStatementLimit is returned when an evaluation exhausts its
	// instruction budget.
	ErrStatementLimit = errors.New("sandbox: statement limit exceeded")

	// ErrCallDepth is returned when an evaluation exceeds the call depth
	// limit.
	ErrCallDepth = errors.New("sandbox: call depth exceeded")

	// ErrTimeout is returned when an evaluation runs longer than the
	// configured timeout.
	ErrTimeout = errors.New("sandbox: evaluation timed out")

	// ErrNonNumeric is returned when a script returns anything but a number.
	ErrNonNumeric = errors.New("sandbox: result is not a number")

	// ErrRuntime wraps script runtime errors.
	ErrRuntime = errors.New("sandbox: runtime error")

	// ErrClosed is returned by Evaluate after Close.
	ErrClosed = errors.New("sandbox: evaluator closed")
)

// Inputs are the only values bound into a script's environment, under the
// global names startValue, endValue, nowFrame, startFrame and endFrame.
type Inputs struct {
	StartValue float64
	EndValue   float64
	NowFrame   int64
	StartFrame int64
	EndFrame   int64
}

// Limits bounds a single evaluation. Zero fields take the value from
// [DefaultLimits].
type Limits struct {
	// MaxStatements is the maximum number of VM instructions one evaluation
	// may execute.
	MaxStatements int64 `yaml:"max_statements"`

	// MaxCallDepth is the maximum depth of the script call stack.
	MaxCallDepth int `yaml:"max_call_depth"`

	// Timeout is the wall-clock limit of one evaluation.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultLimits returns the limits used for zero fields.
func DefaultLimits() Limits {
	return Limits{
		MaxStatements: 100_000,
		MaxCallDepth:  64,
		Timeout:       250 * time.Millisecond,
	}
}

// WithDefaults returns l with every zero field replaced by its default.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.MaxStatements <= 0 {
		l.MaxStatements = d.MaxStatements
	}
	if l.MaxCallDepth <= 0 {
		l.MaxCallDepth = d.MaxCallDepth
	}
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	return l
}

// Evaluator runs one compiled script. Implementations are not safe for
// concurrent use; callers serialise access.
type Evaluator interface {
	Evaluate(ctx context.Context, in Inputs) (float64, error)
	Close() error
}
