package sandbox

import (
	"context"
	"sync/atomic"
)

// closedChan is returned by Done once the budget is spent.
var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// budgetContext is a context that reports itself done after its Done method
// has been called more than n times. The Lua VM polls Done once per executed
// instruction, which turns the context into an instruction budget layered on
// top of the parent's deadline.
type budgetContext struct {
	context.Context
	remaining atomic.Int64
	exhausted atomic.Bool
}

func newBudgetContext(parent context.Context, n int64) *budgetContext {
	b := &budgetContext{Context: parent}
	b.remaining.Store(n)
	return b
}

func (b *budgetContext) Done() <-chan struct{} {
	if b.exhausted.Load() {
		return closedChan
	}
	if b.remaining.Add(-1) < 0 {
		b.exhausted.Store(true)
		return closedChan
	}
	return b.Context.Done()
}

func (b *budgetContext) Err() error {
	if b.exhausted.Load() {
		return ErrStatementLimit
	}
	return b.Context.Err()
}

// Exhausted reports whether the budget ran out.
func (b *budgetContext) Exhausted() bool { return b.exhausted.Load() }
