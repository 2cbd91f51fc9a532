package dotosu

import (
	"errors"
	"fmt"
)

// ErrIOFailure matches every error caused by the input source itself.
var ErrIOFailure = errors.New("dotosu: io failure")

// ParseError is returned when the chart could not be read at all.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("read beatmap: %v", e.Err)
	}
	return fmt.Sprintf("read beatmap %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrIOFailure }

// Diagnostic describes a line that was dropped or repaired during Decode.
type Diagnostic struct {
	Line    int
	Section string
	Text    string
	Err     error
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("line %d [%s]: %v", d.Line, d.Section, d.Err)
}

var (
	errTooFewFields    = errors.New("too few fields")
	errZeroBeatLength  = errors.New("beat length is zero")
	errUnknownKind     = errors.New("no circle, slider or spinner type bit")
	errMalformedCurve  = errors.New("malformed curve")
	errBadSliderOption = errors.New("non-positive difficulty value reset to 1")
)
