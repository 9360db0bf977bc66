// Package errors provides severity-aware error types.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// EosError is a structured error with context.
type EosError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Resource    string   `json:"resource,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *EosError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource: %s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EosError) Unwrap() error {
	return e.Err
}

// Error codes
const (
	ErrCodeChannelClosed   = "CHANNEL_CLOSED"
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeBadConfig       = "BAD_CONFIG"
	ErrCodeProductNotFound = "PRODUCT_NOT_FOUND"
	ErrCodeNoSupply        = "NO_SUPPLY"
	ErrCodePageFormat      = "PAGE_FORMAT"
)

// NewChannelClosedError signals that a supplier listing is closed for the night.
// It aborts the remaining stores of the current company only.
func NewChannelClosedError(channel string) *EosError {
	return &EosError{
		Code:        ErrCodeChannelClosed,
		Message:     fmt.Sprintf("%s market closed for the night", channel),
		Severity:    SeverityError,
		Resource:    channel,
		Recoverable: true,
	}
}

// NewAuthError creates the fatal login failure.
func NewAuthError(user string, err error) *EosError {
	return &EosError{
		Code:        ErrCodeAuthFailed,
		Message:     "login failed",
		Severity:    SeverityFatal,
		Resource:    user,
		Recoverable: false,
		Err:         err,
	}
}

// NewConfigError creates the fatal configuration error.
func NewConfigError(path string, err error) *EosError {
	return &EosError{
		Code:        ErrCodeBadConfig,
		Message:     "invalid configuration",
		Severity:    SeverityFatal,
		Resource:    path,
		Recoverable: false,
		Err:         err,
	}
}

// NewPageFormatError reports content that did not have the expected shape.
func NewPageFormatError(what string, err error) *EosError {
	return &EosError{
		Code:        ErrCodePageFormat,
		Message:     fmt.Sprintf("unexpected page content: %s", what),
		Severity:    SeverityWarning,
		Recoverable: true,
		Err:         err,
	}
}

// Code returns the code of the first EosError in err's chain, or "".
func Code(err error) string {
	var e *EosError
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsChannelClosed reports whether err carries a CHANNEL_CLOSED error.
func IsChannelClosed(err error) bool {
	return Code(err) == ErrCodeChannelClosed
}

// IsFatal reports whether err must terminate the whole run.
func IsFatal(err error) bool {
	var e *EosError
	if stderrors.As(err, &e) {
		return e.Severity == SeverityFatal
	}
	return false
}
