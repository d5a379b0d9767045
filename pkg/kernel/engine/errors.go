package engine

import (
	"errors"
	"fmt"

	"github.com/ormasoftchile/loadout/pkg/kernel/directive"
	"github.com/ormasoftchile/loadout/pkg/kernel/layer"
)

// Sentinels for errors.Is on the typed errors below.
var (
	ErrVersionMismatch = errors.New("version mismatch")
	ErrActivation      = errors.New("activation failed")
	ErrDeactivation    = errors.New("deactivation failed")
	ErrGenerator       = errors.New("generator failed")
	ErrExpansionDepth  = errors.New("expansion depth exceeded")
	ErrNoDeactivate    = errors.New("unit does not support deactivation")
)

// VersionMismatchError reports a unit whose version is absent or below the
// directive's requirement.
type VersionMismatchError struct {
	Target   string
	Required string
	Actual   string // empty when the unit reports no version
}

// Error implements the error interface.
func (e *VersionMismatchError) Error() string {
	actual := e.Actual
	if actual == "" {
		actual = "none"
	}
	return fmt.Sprintf("%s version %s required, have %s", e.Target, e.Required, actual)
}

// Unwrap returns ErrVersionMismatch.
func (e *VersionMismatchError) Unwrap() error { return ErrVersionMismatch }

// ActivationError wraps a failed lookup or Activate call.
type ActivationError struct {
	Target string
	Err    error
}

// Error implements the error interface.
func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate %s: %v", e.Target, e.Err)
}

// Unwrap returns the cause.
func (e *ActivationError) Unwrap() error { return e.Err }

// Is matches ErrActivation.
func (e *ActivationError) Is(target error) bool { return target == ErrActivation }

// DeactivationError wraps a failed lookup or Deactivate call.
type DeactivationError struct {
	Target string
	Err    error
}

// Error implements the error interface.
func (e *DeactivationError) Error() string {
	return fmt.Sprintf("deactivate %s: %v", e.Target, e.Err)
}

// Unwrap returns the cause.
func (e *DeactivationError) Unwrap() error { return e.Err }

// Is matches ErrDeactivation.
func (e *DeactivationError) Is(target error) bool { return target == ErrDeactivation }

// GeneratorError wraps an error returned by a dynamic directive.
type GeneratorError struct {
	Depth int
	Err   error
}

// Error implements the error interface.
func (e *GeneratorError) Error() string {
	return fmt.Sprintf("generator at depth %d: %v", e.Depth, e.Err)
}

// Unwrap returns the cause.
func (e *GeneratorError) Unwrap() error { return e.Err }

// Is matches ErrGenerator.
func (e *GeneratorError) Is(target error) bool { return target == ErrGenerator }

// ExpansionDepthError stops generators that keep producing generators.
type ExpansionDepthError struct {
	Limit int
}

// Error implements the error interface.
func (e *ExpansionDepthError) Error() string {
	return fmt.Sprintf("dynamic expansion nested deeper than %d", e.Limit)
}

// Unwrap returns ErrExpansionDepth.
func (e *ExpansionDepthError) Unwrap() error { return ErrExpansionDepth }

// FailureKind classifies err for traces and scenario expectations.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, layer.ErrUnknownBundle):
		return "unknown_bundle"
	case errors.Is(err, directive.ErrMalformedDirective):
		return "malformed"
	case errors.Is(err, ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ErrDeactivation):
		return "deactivation"
	case errors.Is(err, ErrActivation):
		return "activation"
	case errors.Is(err, ErrExpansionDepth):
		return "expansion_depth"
	case errors.Is(err, ErrGenerator):
		return "generator"
	default:
		return "error"
	}
}
