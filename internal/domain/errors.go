package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential signals a model family whose credential is not configured.
	ErrMissingCredential = errors.New("missing credential")
	// ErrDefaultAgent signals a default agent id that does not resolve.
	ErrDefaultAgent = errors.New("default agent not found")
	// ErrUnknownTool signals a tool id with no definition or executor.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrMalformedOutput signals structured model output that fails its schema.
	ErrMalformedOutput = errors.New("malformed model output")
)

// ConfigError reports deployment misconfiguration. It is never retried.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError reports malformed input rejected before any external call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Reason
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

// TransportError reports a failed call to the model or the history store.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsConfigError reports whether err is, or wraps, a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsValidationError reports whether err is, or wraps, a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
