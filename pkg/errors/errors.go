package errors

import (
	stdErrors "errors"
	"fmt"
)

// ParseError represents a YAML parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Kind classifies device failures so the scheduler can pick a policy.
type Kind string

const (
	KindConstruction   Kind = "construction_failure"
	KindInitialization Kind = "initialization_failure"
	KindUpdateTimeout  Kind = "update_timeout"
	KindUpdate         Kind = "update_failure"
	KindShutdown       Kind = "shutdown_failure"
)

// DeviceError represents a failure of one device operation.
type DeviceError struct {
	Device string
	Op     string
	Kind   Kind
	Err    error
}

// NewDeviceError constructs a DeviceError.
func NewDeviceError(device, op string, kind Kind, err error) error {
	return &DeviceError{Device: device, Op: op, Kind: kind, Err: err}
}

func (e *DeviceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("device %s: %s: %s", e.Device, e.Op, e.Kind)
	}
	return fmt.Sprintf("device %s: %s: %s: %v", e.Device, e.Op, e.Kind, e.Err)
}

// Unwrap exposes the root error.
func (e *DeviceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another DeviceError of the same kind, so callers can test
// errors.Is(err, &DeviceError{Kind: KindUpdateTimeout}).
func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	if !ok || e == nil {
		return false
	}
	return t.Kind == "" || t.Kind == e.Kind
}

// KindOf returns the kind of the first DeviceError in err's tree.
func KindOf(err error) (Kind, bool) {
	var de *DeviceError
	if !stdErrors.As(err, &de) || de == nil {
		return "", false
	}
	return de.Kind, true
}
