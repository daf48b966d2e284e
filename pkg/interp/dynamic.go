package interp

import (
	"context"
	"sync"

	"github.com/MrWong99/keyline/pkg/interp/sandbox"
)

// DynamicExpressionID is the identify key of [DynamicExpressionLogic].
const DynamicExpressionID = "dynamic_expression"

var _ Logic = (*DynamicExpressionLogic)(nil)

// DynamicExpressionLogic evaluates a user-supplied script bound to the five
// Calculate inputs (startValue, endValue, nowFrame, startFrame, endFrame).
//
// Each instance owns its own sandbox, created lazily on first use. Calls on
// one instance are serialised; HardCopy yields an instance with a fresh
// sandbox that shares nothing with the original.
type DynamicExpressionLogic struct {
	mu     sync.Mutex
	script string
	limits sandbox.Limits
	eval   sandbox.Evaluator
}

// NewDynamicExpression returns a scripted strategy. The script is compiled on
// the first call to Calculate.
func NewDynamicExpression(script string, limits sandbox.Limits) *DynamicExpressionLogic {
	return &DynamicExpressionLogic{script: script, limits: limits}
}

func (d *DynamicExpressionLogic) Identify() string { return DynamicExpressionID }

// Script returns the script text.
func (d *DynamicExpressionLogic) Script() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.script
}

// SetScript replaces the script text and discards the current sandbox.
func (d *DynamicExpressionLogic) SetScript(script string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = script
	_ = d.closeLocked()
}

// Limits returns the configured sandbox limits.
func (d *DynamicExpressionLogic) Limits() sandbox.Limits {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.limits
}

// Calculate implements [Logic] with a background context.
func (d *DynamicExpressionLogic) Calculate(startValue, endValue float64, nowFrame, startFrame, endFrame int64) (float64, error) {
	return d.CalculateContext(context.Background(), startValue, endValue, nowFrame, startFrame, endFrame)
}

// CalculateContext is Calculate bounded additionally by ctx. Any failure,
// including a script that cannot be compiled, is returned as an
// [*EvaluationError].
func (d *DynamicExpressionLogic) CalculateContext(ctx context.Context, startValue, endValue float64, nowFrame, startFrame, endFrame int64) (float64, error) {
	if startValue == endValue {
		return startValue, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.eval == nil {
		ev, err := sandbox.NewLua(d.script, d.limits)
		if err != nil {
			return 0, &EvaluationError{Logic: DynamicExpressionID, Err: err}
		}
		d.eval = ev
	}
	v, err := d.eval.Evaluate(ctx, sandbox.Inputs{
		StartValue: startValue,
		EndValue:   endValue,
		NowFrame:   nowFrame,
		StartFrame: startFrame,
		EndFrame:   endFrame,
	})
	if err != nil {
		return 0, &EvaluationError{Logic: DynamicExpressionID, Err: err}
	}
	return v, nil
}

// HardCopy copies the script text and limits into a new instance with its
// own, not yet initialised sandbox.
func (d *DynamicExpressionLogic) HardCopy() Logic {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &DynamicExpressionLogic{script: d.script, limits: d.limits}
}

// Close releases the sandbox. The instance stays usable; the next Calculate
// creates a new sandbox.
func (d *DynamicExpressionLogic) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeLocked()
}

func (d *DynamicExpressionLogic) closeLocked() error {
	if d.eval == nil {
		return nil
	}
	err := d.eval.Close()
	d.eval = nil
	return err
}
