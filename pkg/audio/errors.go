package audio

import (
	"errors"
	"fmt"
)

// ErrInvalidFormat is returned when a sample rate, channel count or frame
// rate is not positive.
var ErrInvalidFormat = errors.New("audio: invalid format")

// FormatMismatchError reports an operation over two operands whose formats
// differ. Mismatches are never coerced.
type FormatMismatchError struct {
	// Op names the operation that failed (e.g. "mix").
	Op string

	// Left and Right describe the two operand formats.
	Left, Right string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("audio: %s: format mismatch: %s vs %s", e.Op, e.Left, e.Right)
}

// ResourceUnavailableError wraps a failure of an external collaborator
// (a timeline source, an output device) so that callers can tell transient
// availability problems from programming errors.
type ResourceUnavailableError struct {
	// Resource names the collaborator, e.g. "timeline" or "device".
	Resource string
	Err      error
}

func (e *ResourceUnavailableError) Error() string {
	return fmt.Sprintf("audio: %s unavailable: %v", e.Resource, e.Err)
}

func (e *ResourceUnavailableError) Unwrap() error { return e.Err }

// IsResourceUnavailable reports whether err (or anything it wraps) is a
// [ResourceUnavailableError].
func IsResourceUnavailable(err error) bool {
	var rue *ResourceUnavailableError
	return errors.As(err, &rue)
}
