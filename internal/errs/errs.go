// Package errs defines the error kinds shared across the sniper pipeline.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrUnsupportedPoolLayout = errors.New("unsupported pool layout")
	ErrTransportsExhausted   = errors.New("detection transports exhausted")
	ErrConfirmationTimeout   = errors.New("confirmation timeout")
)

// TransportError is a connection or subscription failure in a detection
// transport.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError marks a malformed or truncated payload. The event is dropped.
type DecodeError struct {
	Signature string
	Reason    string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode %s: %s: %v", e.Signature, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode %s: %s", e.Signature, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// BuildError is returned when a swap instruction cannot be constructed.
type BuildError struct {
	Pool string
	Err  error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build swap for pool %s: %v", e.Pool, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// SubmissionError is a failure to land a transaction. Permanent errors are
// not retried.
type SubmissionError struct {
	Permanent bool
	Err       error
}

func (e *SubmissionError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s submission error: %v", kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &SubmissionError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &SubmissionError{Permanent: true, Err: err}
}

// IsPermanent reports whether err carries a permanent SubmissionError.
func IsPermanent(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se) && se.Permanent
}

// IsTransient reports whether err carries a retryable SubmissionError.
func IsTransient(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se) && !se.Permanent
}

// ConfigurationError is a fatal startup problem.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}
