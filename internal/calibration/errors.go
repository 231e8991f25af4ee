package calibration

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPopulation means no row qualified for a threshold.
	ErrEmptyPopulation = errors.New("empty qualifying population")
	// ErrInvalidSpec covers malformed predicates and threshold specs.
	ErrInvalidSpec = errors.New("invalid calibration spec")
	// ErrInvalidTable covers tables that fail structural checks.
	ErrInvalidTable = errors.New("invalid threshold table")
)

// Error is a calibration failure attributed to one threshold.
type Error struct {
	Threshold string
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("calibrate %s: %v", e.Threshold, e.Err)
	}
	return fmt.Sprintf("calibrate %s: %v (%s)", e.Threshold, e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}
