package errors

import (
	"errors"
	"fmt"
)

// Domain error types for the scan pipeline

var (
	// ErrTransport indicates a network-level failure (timeout, connection reset)
	ErrTransport = errors.New("transport failure")

	// ErrParse indicates a malformed or unexpected JSON shape from upstream
	ErrParse = errors.New("malformed upstream payload")

	// ErrDecode indicates a malformed options contract symbol
	ErrDecode = errors.New("malformed contract symbol")

	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")

	// ErrTimeout indicates an operation timeout
	ErrTimeout = errors.New("operation timeout")

	// ErrRateLimited indicates the upstream API throttled the request
	ErrRateLimited = errors.New("rate limit exceeded")
)

// StatusError indicates a non-2xx response from the upstream market-data API.
// The retry middleware inspects StatusCode() to decide whether to retry.
type StatusError struct {
	Code int
	URL  string
	Body string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream status %d for %s: %s", e.Code, e.URL, e.Body)
	}
	return fmt.Sprintf("upstream status %d for %s", e.Code, e.URL)
}

// StatusCode returns the HTTP status code
func (e *StatusError) StatusCode() int {
	return e.Code
}

// NewStatusError creates a new upstream status error
func NewStatusError(code int, url, body string) *StatusError {
	return &StatusError{Code: code, URL: url, Body: body}
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
