package sandbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/keyline/pkg/interp/sandbox"
)

var midway = sandbox.Inputs{StartValue: 10, EndValue: 20, NowFrame: 5, StartFrame: 0, EndFrame: 10}

func newLua(t *testing.T, src string, limits sandbox.Limits) *sandbox.Lua {
	t.Helper()
	l, err := sandbox.NewLua(src, limits)
	if err != nil {
		t.Fatalf("NewLua(%q): %v", src, err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLua_Evaluate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want float64
	}{
		{"expression", "startValue + (endValue - startValue) * (nowFrame - startFrame) / (endFrame - startFrame)", 15},
		{"block", "local t = (nowFrame - startFrame) / (endFrame - startFrame)\nreturn startValue * (1 - t) + endValue * t", 15},
		{"math library", "math.floor(endValue / 3)", 6},
		{"math huge", "math.min(math.huge, endFrame)", 10},
		{"constant", "42", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := newLua(t, tt.src, sandbox.Limits{})
			got, err := l.Evaluate(context.Background(), midway)
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewLua_CompileError(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		"",
		"   ",
		"return (",
		"local = 3",
		"startValue .. 'x'",
		"local s = 'a'\nfor i = 1, 40 do s = s .. s end\nreturn 1",
		"local function grow(x) return x .. x end\nreturn 1",
	} {
		if _, err := sandbox.NewLua(src, sandbox.Limits{}); !errors.Is(err, sandbox.ErrCompile) {
			t.Errorf("NewLua(%q) err = %v, want ErrCompile", src, err)
		}
	}
}

func TestLua_StatementLimit(t *testing.T) {
	t.Parallel()

	l := newLua(t, "while true do end", sandbox.Limits{MaxStatements: 1000, Timeout: 10 * time.Second})
	start := time.Now()
	_, err := l.Evaluate(context.Background(), midway)
	if !errors.Is(err, sandbox.ErrStatementLimit) {
		t.Fatalf("err = %v, want ErrStatementLimit", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("statement limit took too long to trip")
	}
}

func TestLua_Timeout(t *testing.T) {
	t.Parallel()

	l := newLua(t, "while true do end", sandbox.Limits{MaxStatements: 1 << 62, Timeout: 20 * time.Millisecond})
	_, err := l.Evaluate(context.Background(), midway)
	if !errors.Is(err, sandbox.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestLua_CallDepth(t *testing.T) {
	t.Parallel()

	src := "local function f(n) return 1 + f(n + 1) end\nreturn f(0)"
	l := newLua(t, src, sandbox.Limits{MaxCallDepth: 32, MaxStatements: 1 << 40, Timeout: 10 * time.Second})
	_, err := l.Evaluate(context.Background(), midway)
	if !errors.Is(err, sandbox.ErrCallDepth) {
		t.Fatalf("err = %v, want ErrCallDepth", err)
	}
}

func TestLua_NonNumeric(t *testing.T) {
	t.Parallel()

	for _, src := range []string{"'abc'", "'5'", "nil", "{}", "true"} {
		l := newLua(t, src, sandbox.Limits{})
		if _, err := l.Evaluate(context.Background(), midway); !errors.Is(err, sandbox.ErrNonNumeric) {
			t.Errorf("%s: err = %v, want ErrNonNumeric", src, err)
		}
	}
}

func TestLua_NoHostAccess(t *testing.T) {
	t.Parallel()

	for _, src := range []string{
		"os.time()",
		"io.write('x')",
		"require('os')",
		"print(1)",
		"dofile('/etc/passwd')",
		"loadstring('return 1')()",
		"string.len('x')",
		"math.random()",
		"math.randomseed(7)",
	} {
		l := newLua(t, src, sandbox.Limits{})
		if _, err := l.Evaluate(context.Background(), midway); !errors.Is(err, sandbox.ErrRuntime) {
			t.Errorf("%s: err = %v, want ErrRuntime", src, err)
		}
	}
}

func TestLua_NoStateLeaksBetweenEvaluations(t *testing.T) {
	t.Parallel()

	l := newLua(t, "counter = (counter or 0) + 1\nreturn counter", sandbox.Limits{})
	for i := 0; i < 3; i++ {
		got, err := l.Evaluate(context.Background(), midway)
		if err != nil {
			t.Fatalf("Evaluate #%d: %v", i, err)
		}
		if got != 1 {
			t.Fatalf("Evaluate #%d = %v, want 1", i, got)
		}
	}
}

func TestLua_MathTableIsPrivate(t *testing.T) {
	t.Parallel()

	l := newLua(t, "local before = math.floor(2.5)\nmath.floor = nil\nreturn before", sandbox.Limits{})
	for i := 0; i < 2; i++ {
		got, err := l.Evaluate(context.Background(), midway)
		if err != nil {
			t.Fatalf("Evaluate #%d: %v", i, err)
		}
		if got != 2 {
			t.Fatalf("Evaluate #%d = %v, want 2", i, got)
		}
	}
}

func TestLua_MathIsDeterministic(t *testing.T) {
	t.Parallel()

	l := newLua(t, "(math.random == nil and math.randomseed == nil) and math.sqrt(nowFrame) or -1", sandbox.Limits{})
	for i := 0; i < 2; i++ {
		got, err := l.Evaluate(context.Background(), sandbox.Inputs{NowFrame: 16, EndFrame: 32})
		if err != nil {
			t.Fatalf("Evaluate #%d: %v", i, err)
		}
		if got != 4 {
			t.Fatalf("Evaluate #%d = %v, want 4", i, got)
		}
	}
}

func TestLua_RecoversAfterFailure(t *testing.T) {
	t.Parallel()

	l := newLua(t, "if nowFrame < 0 then while true do end end\nreturn nowFrame * 2", sandbox.Limits{MaxStatements: 500})
	bad := midway
	bad.NowFrame = -1
	if _, err := l.Evaluate(context.Background(), bad); !errors.Is(err, sandbox.ErrStatementLimit) {
		t.Fatalf("first err = %v, want ErrStatementLimit", err)
	}
	got, err := l.Evaluate(context.Background(), midway)
	if err != nil {
		t.Fatalf("second Evaluate: %v", err)
	}
	if got != 10 {
		t.Errorf("got %v, want 10", got)
	}
}

func TestLua_ParentCancellation(t *testing.T) {
	t.Parallel()

	l := newLua(t, "while true do end", sandbox.Limits{MaxStatements: 1 << 62, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Evaluate(ctx, midway); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLua_Closed(t *testing.T) {
	t.Parallel()

	l, err := sandbox.NewLua("1", sandbox.Limits{})
	if err != nil {
		t.Fatalf("NewLua: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := l.Evaluate(context.Background(), midway); !errors.Is(err, sandbox.ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestLimits_WithDefaults(t *testing.T) {
	t.Parallel()

	got := sandbox.Limits{MaxCallDepth: 8}.WithDefaults()
	d := sandbox.DefaultLimits()
	if got.MaxCallDepth != 8 || got.MaxStatements != d.MaxStatements || got.Timeout != d.Timeout {
		t.Errorf("WithDefaults = %+v", got)
	}
}
