// Package interp computes animated parameter values between keyframes.
//
// A [Logic] maps two anchor values and a position on a frame timeline to an
// in-between value. Strategies are interchangeable and are persisted solely
// by their [Logic.Identify] key, which a [Registry] resolves back to a
// constructible instance.
//
// Every built-in strategy returns startValue unchanged when startValue equals
// endValue. Callers must otherwise guarantee startFrame != endFrame.
package interp

import "fmt"

// Logic is an interpolation strategy.
type Logic interface {
	// Identify returns the stable persistence key of the strategy type.
	Identify() string

	// Calculate returns the value at nowFrame on the segment
	// [startFrame, endFrame] running from startValue to endValue.
	Calculate(startValue, endValue float64, nowFrame, startFrame, endFrame int64) (float64, error)

	// HardCopy returns a fully independent copy of the strategy.
	HardCopy() Logic
}

// EvaluationError is returned when a strategy fails to produce a value. It
// wraps the underlying cause.
type EvaluationError struct {
	Logic string
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("interp: %s evaluation failed: %v", e.Logic, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// UnknownLogicError is returned when an identify key has no registered
// strategy.
type UnknownLogicError struct {
	Identify string
}

func (e *UnknownLogicError) Error() string {
	return fmt.Sprintf("interp: unknown interpolation logic %q", e.Identify)
}

// progress returns the normalised position of now on [start, end].
func progress(now, start, end int64) float64 {
	return float64(now-start) / float64(end-start)
}

// lerp is exact at t == 0 and t == 1.
func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
