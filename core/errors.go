package core

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid workflow configuration detected at
// construction time (e.g. no fan-out units, or an ambiguous fan-in side).
// Construction-time detection keeps every generation call free of
// configuration checks.
type ConfigError struct {
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid workflow configuration: %s", e.Reason)
}

// NewConfigError builds a ConfigError from a format string.
func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// UnitError attributes a generation failure to a named unit while preserving
// the underlying error for errors.Is / errors.As inspection. Fan-out and
// fan-in wrap unit failures in UnitError and abort the enclosing call; no
// partial or best-effort aggregation is attempted.
type UnitError struct {
	Unit string // Name of the failing generation unit
	Err  error  // Underlying failure, unmodified
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	return fmt.Sprintf("generation unit %q failed: %v", e.Unit, e.Err)
}

// Unwrap exposes the underlying unit failure.
func (e *UnitError) Unwrap() error { return e.Err }
