package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHalted is returned when a run stops on an error classification
	ErrHalted = errors.New("replay halted")

	// ErrCanceled is returned when the run context is canceled between batches
	ErrCanceled = errors.New("replay canceled")

	// ErrBatchErrors is returned at the end of a continue-on-error run that saw failures
	ErrBatchErrors = errors.New("one or more batches failed")
)

// ConfigError reports bad arguments or configuration, detected before any work starts
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config error: " + e.Reason
	}
	return fmt.Sprintf("config error: %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a new ConfigError
func NewConfigError(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// MalformedRowError reports an input row that cannot form a WorkItem
type MalformedRowError struct {
	Line   int
	Row    []string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row at line %d (%s): %s", e.Line, strings.Join(e.Row, ","), e.Reason)
}

// AuthError reports a credential provider failure
type AuthError struct {
	Audience string
	Env      string
	Stderr   string
	Err      error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("failed to obtain token for audience %q in %s", e.Audience, e.Env)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// RemoteError reports a remote call classified as an error.
// StatusCode is 0 when no HTTP response was received.
type RemoteError struct {
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// HaltError wraps the failure that stopped a run
type HaltError struct {
	Batch int
	Items []WorkItem
	Err   error
}

func (e *HaltError) Error() string {
	return fmt.Sprintf("%s at batch %d (%d items): %v", ErrHalted, e.Batch, len(e.Items), e.Err)
}

func (e *HaltError) Unwrap() []error {
	return []error{ErrHalted, e.Err}
}
