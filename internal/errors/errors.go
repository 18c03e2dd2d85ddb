package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Base error types
var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTimeout          = errors.New("timeout")
	ErrConnectionFailed = errors.New("connection failed")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrStateUnreadable  = errors.New("state unreadable")
	ErrDeliveryFailed   = errors.New("delivery failed")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConnection ErrorType = "connection"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeAPI        ErrorType = "api"
	ErrorTypeParse      ErrorType = "parse"
	ErrorTypeDelivery   ErrorType = "delivery"
	ErrorTypeState      ErrorType = "state"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeTimeout    ErrorType = "timeout"
)

// ScanError is a structured error for scanner operations
type ScanError struct {
	Type       ErrorType
	Op         string // Operation that failed (e.g., "get_events", "smtp_send")
	Controller string // Controller host where the error occurred
	Err        error  // Underlying error
	StatusCode int    // HTTP status code if applicable
	Hint       string // Human-readable remediation hint (auth errors)
	Timestamp  time.Time
	Retryable  bool
}

func (e *ScanError) Error() string {
	if e.Controller != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Controller, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is interface
func (e *ScanError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrUnauthorized:
		return e.Type == ErrorTypeAuth
	case ErrTimeout:
		return e.Type == ErrorTypeTimeout
	case ErrConnectionFailed:
		return e.Type == ErrorTypeConnection
	case ErrInvalidConfig:
		return e.Type == ErrorTypeConfig
	case ErrStateUnreadable:
		return e.Type == ErrorTypeState
	case ErrDeliveryFailed:
		return e.Type == ErrorTypeDelivery
	}

	return errors.Is(e.Err, target)
}

// New creates a new ScanError
func New(errorType ErrorType, op, controller string, err error) *ScanError {
	return &ScanError{
		Type:       errorType,
		Op:         op,
		Controller: controller,
		Err:        err,
		Timestamp:  time.Now(),
		Retryable:  isRetryable(errorType),
	}
}

// WithStatusCode adds the HTTP status code and refines retryability
func (e *ScanError) WithStatusCode(code int) *ScanError {
	e.StatusCode = code
	if code >= 500 || code == 429 || code == 408 {
		e.Retryable = true
	} else if code >= 400 && code < 500 {
		e.Retryable = false
	}
	return e
}

// WithHint attaches a human-readable hint shown to the operator on failure
func (e *ScanError) WithHint(hint string) *ScanError {
	e.Hint = hint
	return e
}

func isRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeDelivery:
		return true
	default:
		return false
	}
}

// WrapConnection wraps a connection error with context
func WrapConnection(op, controller string, err error) error {
	return New(ErrorTypeConnection, op, controller, err)
}

// WrapAuth wraps an authentication error with context
func WrapAuth(op, controller string, err error) *ScanError {
	return New(ErrorTypeAuth, op, controller, err)
}

// WrapAPI wraps an application-level API error with context
func WrapAPI(op, controller string, err error, statusCode int) error {
	return New(ErrorTypeAPI, op, controller, err).WithStatusCode(statusCode)
}

// IsRetryableError checks if an error should be retried
func IsRetryableError(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnectionFailed)
}

// IsConnectionError checks if an error is a connection error
func IsConnectionError(err error) bool {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Type == ErrorTypeConnection || scanErr.Type == ErrorTypeTimeout
	}
	return errors.Is(err, ErrConnectionFailed)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		if scanErr.Type == ErrorTypeAuth {
			return true
		}
		if scanErr.StatusCode == 401 || scanErr.StatusCode == 403 {
			return true
		}
	}

	if errors.Is(err, ErrUnauthorized) {
		return true
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "authentication failed") ||
		strings.Contains(errMsg, "401") ||
		strings.Contains(errMsg, "403") ||
		strings.Contains(errMsg, "unauthorized") ||
		strings.Contains(errMsg, "forbidden")
}

// Hint extracts the operator hint from an error chain, if any
func Hint(err error) string {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Hint
	}
	return ""
}
