package interp

// Identify keys of the built-in strategies.
const (
	LinearID     = "linear"
	SmoothstepID = "smoothstep"
	HoldID       = "hold"
)

var (
	_ Logic = LinearLogic{}
	_ Logic = SmoothstepLogic{}
	_ Logic = HoldLogic{}
)

// LinearLogic interpolates along a straight line. Positions outside the
// segment extrapolate.
//
// The value is computed as startValue*(1-t) + endValue*t rather than
// startValue + (endValue-startValue)*t. Both forms agree at the anchors; the
// weighted form returns endValue exactly at t == 1, and interior values may
// differ from the offset form in the last bit.
type LinearLogic struct{}

func (LinearLogic) Identify() string { return LinearID }

func (LinearLogic) Calculate(startValue, endValue float64, nowFrame, startFrame, endFrame int64) (float64, error) {
	if startValue == endValue {
		return startValue, nil
	}
	return lerp(startValue, endValue, progress(nowFrame, startFrame, endFrame)), nil
}

func (LinearLogic) HardCopy() Logic { return LinearLogic{} }

// SmoothstepLogic eases in and out with 3t²−2t³. Progress is clamped to the
// segment.
type SmoothstepLogic struct{}

func (SmoothstepLogic) Identify() string { return SmoothstepID }

func (SmoothstepLogic) Calculate(startValue, endValue float64, nowFrame, startFrame, endFrame int64) (float64, error) {
	if startValue == endValue {
		return startValue, nil
	}
	t := min(max(progress(nowFrame, startFrame, endFrame), 0), 1)
	return lerp(startValue, endValue, t*t*(3-2*t)), nil
}

func (SmoothstepLogic) HardCopy() Logic { return SmoothstepLogic{} }

// HoldLogic keeps startValue until endFrame is reached.
type HoldLogic struct{}

func (HoldLogic) Identify() string { return HoldID }

func (HoldLogic) Calculate(startValue, endValue float64, nowFrame, _, endFrame int64) (float64, error) {
	if startValue == endValue || nowFrame < endFrame {
		return startValue, nil
	}
	return endValue, nil
}

func (HoldLogic) HardCopy() Logic { return HoldLogic{} }
