package interp_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/keyline/pkg/interp"
	"github.com/MrWong99/keyline/pkg/interp/sandbox"
)

func TestTrack_ValueAt(t *testing.T) {
	t.Parallel()

	tr := interp.NewTrack(
		interp.Keyframe{Frame: 100, Value: 0, Logic: interp.HoldLogic{}},
		interp.Keyframe{Frame: 0, Value: 1},
		interp.Keyframe{Frame: 50, Value: 0},
		interp.Keyframe{Frame: 200, Value: 5},
	)

	tests := []struct {
		frame int64
		want  float64
	}{
		{-10, 1},
		{0, 1},
		{25, 0.5},
		{50, 0},
		{75, 0},
		{100, 0},
		{199, 0},
		{200, 5},
		{1000, 5},
	}
	for _, tt := range tests {
		got, err := tr.ValueAt(tt.frame)
		if err != nil {
			t.Fatalf("ValueAt(%d): %v", tt.frame, err)
		}
		if got != tt.want {
			t.Errorf("ValueAt(%d) = %v, want %v", tt.frame, got, tt.want)
		}
	}
}

func TestTrack_AddReplacesSameFrame(t *testing.T) {
	t.Parallel()

	tr := interp.NewTrack(interp.Keyframe{Frame: 10, Value: 1})
	tr.Add(interp.Keyframe{Frame: 10, Value: 2})
	if tr.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tr.Len())
	}
	if got, _ := tr.ValueAt(10); got != 2 {
		t.Errorf("ValueAt = %v, want 2", got)
	}
}

func TestTrack_Empty(t *testing.T) {
	t.Parallel()

	if _, err := interp.NewTrack().ValueAt(0); !errors.Is(err, interp.ErrEmptyTrack) {
		t.Errorf("err = %v, want ErrEmptyTrack", err)
	}
}

func TestTrack_PropagatesEvaluationError(t *testing.T) {
	t.Parallel()

	tr := interp.NewTrack(
		interp.Keyframe{Frame: 0, Value: 0, Logic: interp.NewDynamicExpression("'text'", sandbox.Limits{})},
		interp.Keyframe{Frame: 10, Value: 1},
	)
	_, err := tr.ValueAt(5)
	var ee *interp.EvaluationError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v, want *EvaluationError", err)
	}
}

func TestTrack_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	reg := interp.NewRegistry(sandbox.Limits{})
	tr := interp.NewTrack(
		interp.Keyframe{Frame: 0, Value: 0, Logic: interp.SmoothstepLogic{}},
		interp.Keyframe{Frame: 10, Value: 1, Logic: interp.NewDynamicExpression("endValue", sandbox.Limits{})},
		interp.Keyframe{Frame: 20, Value: 3},
	)
	data, err := interp.MarshalTrack(tr)
	if err != nil {
		t.Fatalf("MarshalTrack: %v", err)
	}
	if !strings.Contains(string(data), "identify: dynamic_expression") {
		t.Errorf("yaml missing identify:\n%s", data)
	}

	back, err := reg.UnmarshalTrack(data)
	if err != nil {
		t.Fatalf("UnmarshalTrack: %v", err)
	}
	keys := back.Keyframes()
	if len(keys) != 3 {
		t.Fatalf("len = %d, want 3", len(keys))
	}
	if keys[0].Logic.Identify() != interp.SmoothstepID {
		t.Errorf("key 0 logic = %q", keys[0].Logic.Identify())
	}
	if keys[2].Logic != nil {
		t.Errorf("key 2 logic = %v, want nil", keys[2].Logic)
	}
	for _, f := range []int64{0, 5, 15, 20} {
		want, _ := tr.ValueAt(f)
		got, err := back.ValueAt(f)
		if err != nil {
			t.Fatalf("ValueAt(%d): %v", f, err)
		}
		if got != want {
			t.Errorf("ValueAt(%d) = %v, want %v", f, got, want)
		}
	}
}

func TestRegistry_UnknownLogic(t *testing.T) {
	t.Parallel()

	reg := interp.NewRegistry(sandbox.Limits{})
	_, err := reg.UnmarshalTrack([]byte("- frame: 0\n  value: 1\n  logic:\n    identify: bezier\n"))
	var ue *interp.UnknownLogicError
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want *UnknownLogicError", err)
	}
	if ue.Identify != "bezier" {
		t.Errorf("Identify = %q", ue.Identify)
	}
}

func TestRegistry_Identifiers(t *testing.T) {
	t.Parallel()

	reg := interp.NewRegistry(sandbox.Limits{})
	reg.Register("custom", func(interp.Spec) (interp.Logic, error) { return interp.LinearLogic{}, nil })
	got := strings.Join(reg.Identifiers(), ",")
	want := "custom,dynamic_expression,hold,linear,smoothstep"
	if got != want {
		t.Errorf("Identifiers = %s, want %s", got, want)
	}
}

func TestRegistry_IdentifyUnique(t *testing.T) {
	t.Parallel()

	reg := interp.NewRegistry(sandbox.Limits{})
	for _, id := range reg.Identifiers() {
		l, err := reg.New(interp.Spec{Identify: id, Script: "1"})
		if err != nil {
			t.Fatalf("New(%s): %v", id, err)
		}
		if l.Identify() != id {
			t.Errorf("New(%s).Identify() = %q", id, l.Identify())
		}
	}
}

func TestTrack_HardCopy(t *testing.T) {
	t.Parallel()

	dyn := interp.NewDynamicExpression("endValue", sandbox.Limits{})
	tr := interp.NewTrack(interp.Keyframe{Frame: 0, Value: 0, Logic: dyn}, interp.Keyframe{Frame: 10, Value: 4})
	cp := tr.HardCopy()
	dyn.SetScript("startValue")

	got, err := cp.ValueAt(5)
	if err != nil {
		t.Fatalf("ValueAt: %v", err)
	}
	if got != 4 {
		t.Errorf("copy ValueAt = %v, want 4", got)
	}
}
