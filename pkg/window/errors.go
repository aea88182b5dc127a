package window

import (
	"fmt"

	"github.com/pkg/errors"
)

// Severity classifies a sampling failure.
type Severity int

const (
	// Transient means a single sample failed; the next tick may succeed.
	Transient Severity = iota
	// Fatal means the sampling mechanism is permanently broken.
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrNoActiveWindow is returned when no window currently has focus.
var ErrNoActiveWindow = errors.New("no active window found")

// SampleError is the error type returned by Detector implementations.
type SampleError struct {
	Severity Severity
	Strategy string
	Err      error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("%s sample error (%s): %v", e.Severity, e.Strategy, e.Err)
}

func (e *SampleError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err as a Fatal sampling error.
func NewFatal(strategy string, err error) error {
	return &SampleError{Severity: Fatal, Strategy: strategy, Err: err}
}

// NewTransient wraps err as a Transient sampling error.
func NewTransient(strategy string, err error) error {
	return &SampleError{Severity: Transient, Strategy: strategy, Err: err}
}

// Classify returns the severity of err. Errors that were not produced by
// NewFatal are Transient.
func Classify(err error) Severity {
	var se *SampleError
	if errors.As(err, &se) {
		return se.Severity
	}
	return Transient
}

// IsFatal reports whether err stops the heartbeat loop.
func IsFatal(err error) bool {
	return err != nil && Classify(err) == Fatal
}
