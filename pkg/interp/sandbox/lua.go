package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

const chunkName = "interpolation"

// hostMath lists math library members backed by process-global state.
var hostMath = map[string]bool{
	"random":     true,
	"randomseed": true,
}

var _ Evaluator = (*Lua)(nil)

// Lua evaluates a script with gopher-lua. The script is compiled once; every
// evaluation runs the compiled function against a freshly built environment
// table, so globals assigned by one evaluation are invisible to the next.
//
// Source may be a bare expression ("startValue + 1") or a block that ends in
// an explicit return statement.
type Lua struct {
	limits Limits
	proto  *lua.FunctionProto
	state  *lua.LState
	math   *lua.LTable
	closed bool
}

// NewLua compiles source and prepares an isolated interpreter state.
func NewLua(source string, limits Limits) (*Lua, error) {
	proto, err := compile(source)
	if err != nil {
		return nil, err
	}
	l := &Lua{limits: limits.WithDefaults(), proto: proto}
	if err := l.reset(); err != nil {
		return nil, err
	}
	return l, nil
}

// Limits returns the effective limits.
func (l *Lua) Limits() Limits { return l.limits }

// compile accepts either an expression or a statement block.
func compile(source string) (*lua.FunctionProto, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("%w: empty script", ErrCompile)
	}
	proto, err := compileBlock("return " + source)
	if err != nil {
		if proto, err = compileBlock(source); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCompile, err)
		}
	}
	if usesConcat(proto) {
		return nil, fmt.Errorf("%w: string concatenation is not allowed", ErrCompile)
	}
	return proto, nil
}

// usesConcat reports whether proto or any nested function contains a
// concatenation. Concatenation is the only way a script can grow memory
// faster than its instruction budget.
func usesConcat(proto *lua.FunctionProto) bool {
	for _, inst := range proto.Code {
		if int(inst>>26) == lua.OP_CONCAT {
			return true
		}
	}
	for _, fp := range proto.FunctionPrototypes {
		if usesConcat(fp) {
			return true
		}
	}
	return false
}

func compileBlock(src string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), chunkName)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, chunkName)
}

// reset replaces the interpreter state with a new one. Only the math
// library is loaded; base, io, os, package and friends are never opened.
func (l *Lua) reset() error {
	if l.state != nil {
		l.state.Close()
	}
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: l.limits.MaxCallDepth,
	})
	if err := L.CallByParam(lua.P{
		Fn:      L.NewFunction(lua.OpenMath),
		NRet:    1,
		Protect: true,
	}, lua.LString(lua.MathLibName)); err != nil {
		L.Close()
		return fmt.Errorf("sandbox: open math library: %w", err)
	}
	mathLib, ok := L.Get(-1).(*lua.LTable)
	L.Pop(1)
	if !ok {
		L.Close()
		return errors.New("sandbox: math library did not return a table")
	}
	l.state = L
	l.math = mathLib
	return nil
}

func (l *Lua) env(in Inputs) *lua.LTable {
	env := l.state.NewTable()
	env.RawSetString("startValue", lua.LNumber(in.StartValue))
	env.RawSetString("endValue", lua.LNumber(in.EndValue))
	env.RawSetString("nowFrame", lua.LNumber(in.NowFrame))
	env.RawSetString("startFrame", lua.LNumber(in.StartFrame))
	env.RawSetString("endFrame", lua.LNumber(in.EndFrame))

	m := l.state.NewTable()
	l.math.ForEach(func(k, v lua.LValue) {
		if name, ok := k.(lua.LString); ok && hostMath[string(name)] {
			return
		}
		m.RawSet(k, v)
	})
	env.RawSetString("math", m)
	return env
}

// Evaluate runs the script once. Any failure discards the interpreter state
// so that a later evaluation starts from a clean VM.
func (l *Lua) Evaluate(ctx context.Context, in Inputs) (float64, error) {
	if l.closed {
		return 0, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, l.limits.Timeout)
	defer cancel()
	budget := newBudgetContext(ctx, l.limits.MaxStatements)

	fn := l.state.NewFunctionFromProto(l.proto)
	fn.Env = l.env(in)

	l.state.SetContext(budget)
	l.state.Push(fn)
	err := l.state.PCall(0, 1, nil)
	l.state.RemoveContext()

	if err != nil {
		cause := classify(err, budget, ctx)
		if rerr := l.reset(); rerr != nil {
			l.closed = true
			return 0, errors.Join(cause, rerr)
		}
		return 0, cause
	}

	ret := l.state.Get(-1)
	l.state.Pop(1)
	n, ok := ret.(lua.LNumber)
	if !ok {
		return 0, fmt.Errorf("%w: got %s", ErrNonNumeric, ret.Type())
	}
	return float64(n), nil
}

func classify(err error, budget *budgetContext, ctx context.Context) error {
	switch {
	case budget.Exhausted():
		return ErrStatementLimit
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case ctx.Err() != nil:
		return ctx.Err()
	case strings.Contains(err.Error(), "stack overflow"):
		return fmt.Errorf("%w: %v", ErrCallDepth, err)
	default:
		return fmt.Errorf("%w: %v", ErrRuntime, err)
	}
}

// Close releases the interpreter state.
func (l *Lua) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.state != nil {
		l.state.Close()
		l.state = nil
	}
	return nil
}
