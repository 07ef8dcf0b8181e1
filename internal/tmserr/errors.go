// Package tmserr defines the error taxonomy shared by the pyramid, router and
// server packages.
package tmserr

import (
	"errors"
	"fmt"
)

// ErrNotFound reports a per-request tile miss. It is not a server failure.
var ErrNotFound = errors.New("tile not found")

// ConfigurationError reports an invalid construction argument.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// Configf builds a ConfigurationError.
func Configf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// Axis names the coordinate that failed a range check.
type Axis string

const (
	AxisZoom   Axis = "zoom"
	AxisColumn Axis = "column"
	AxisRow    Axis = "row"
)

// RangeError reports a zoom without a pyramid level, or a column or row
// outside a level's bounds.
type RangeError struct {
	Axis  Axis
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s out of bounds: %d not in [%d, %d]", e.Axis, e.Value, e.Min, e.Max)
}

// BindingError wraps a failure to acquire a listener.
type BindingError struct {
	Addr string
	Err  error
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("error binding to %s: %v", e.Addr, e.Err)
}

func (e *BindingError) Unwrap() error { return e.Err }

// RenderError wraps an error or panic raised while decoding tile data or
// running a render callback. Stack is set when the failure was a panic.
type RenderError struct {
	Err   error
	Stack []byte
}

func (e *RenderError) Error() string {
	return "render failed: " + e.Err.Error()
}

func (e *RenderError) Unwrap() error { return e.Err }

// StateError reports an operation invoked in the wrong lifecycle state.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string {
	return e.Msg
}

// IsNotFound reports whether err is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
