package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Malformed, missing or out-of-range submitted data. Reported to
	// the caller with the offending field named.
	Validation Kind = iota
	// Malformed catalog or deployment configuration. Logged, fails
	// closed, never surfaced raw to the end user.
	Configuration
	// All AI candidates exhausted on transient failures. Retryable.
	UpstreamUnavailable
	// Fatal AI backend error (bad credentials, rejected request).
	Upstream
)

type Fault struct {
	Kind    Kind
	Field   string // offending question/field id, validation only
	Message string
	Err     error
}

func (e *Fault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.kindString(), e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.kindString(), e.Message)
}

// Unwrap allows errors.Is and errors.As to work.
func (e *Fault) Unwrap() error {
	return e.Err
}

func (e *Fault) kindString() string {
	switch e.Kind {
	case Validation:
		return "ValidationError"
	case Configuration:
		return "ConfigurationError"
	case UpstreamUnavailable:
		return "UpstreamUnavailable"
	case Upstream:
		return "UpstreamError"
	default:
		return "UnknownError"
	}
}

// NewValidation creates a validation error naming the offending field.
func NewValidation(field, msg string) error {
	return &Fault{Kind: Validation, Field: field, Message: msg}
}

// NewConfiguration creates a configuration error.
func NewConfiguration(msg string, err error) error {
	return &Fault{Kind: Configuration, Message: msg, Err: err}
}

// NewUnavailable creates a transient upstream error.
func NewUnavailable(msg string, err error) error {
	return &Fault{Kind: UpstreamUnavailable, Message: msg, Err: err}
}

// NewUpstream creates a fatal upstream error.
func NewUpstream(msg string, err error) error {
	return &Fault{Kind: Upstream, Message: msg, Err: err}
}

// KindOf reports the fault kind of err. ok is false for plain errors.
func KindOf(err error) (Kind, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// FieldOf returns the offending field for a validation error.
func FieldOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Field
	}
	return ""
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Validation
}

// IsTransient checks if an error is a transient upstream failure.
func IsTransient(err error) bool {
	k, ok := KindOf(err)
	return ok && k == UpstreamUnavailable
}
