package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the different failure conditions an archive run can hit
type ErrorType string

const (
	ErrorTypeNavigation          ErrorType = "navigation"
	ErrorTypeContentMissing      ErrorType = "content_missing"
	ErrorTypeBlocked             ErrorType = "blocked"
	ErrorTypeRateLimit           ErrorType = "rate_limit"
	ErrorTypeSessionExpired      ErrorType = "session_expired"
	ErrorTypeAccountNotEligible  ErrorType = "account_not_eligible"
	ErrorTypeLoginTimeout        ErrorType = "login_timeout"
	ErrorTypeVerificationTimeout ErrorType = "verification_timeout"
	ErrorTypeImageFetch          ErrorType = "image_fetch"
	ErrorTypeMalformedRecord     ErrorType = "malformed_record"
	ErrorTypeNetwork             ErrorType = "network"
	ErrorTypeServerError         ErrorType = "server_error"
	ErrorTypeAuth                ErrorType = "auth"
	ErrorTypeNotFound            ErrorType = "not_found"
	ErrorTypeParsing             ErrorType = "parsing"
	ErrorTypeUnknown             ErrorType = "unknown"
)

// Error carries a typed failure with enough context to diagnose it
type Error struct {
	Type    ErrorType
	Message string
	URL     string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s error", e.Type)
	if e.Code != 0 {
		msg = fmt.Sprintf("%s (code %d)", msg, e.Code)
	}
	msg += ": " + e.Message
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error without an underlying cause
func New(t ErrorType, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Wrap creates a typed error around cause
func Wrap(t ErrorType, cause error, message string) *Error {
	return &Error{Type: t, Message: message, Err: cause}
}

// WithURL returns the error annotated with the URL being processed
func (e *Error) WithURL(url string) *Error {
	e.URL = url
	return e
}

// WithCode returns the error annotated with a platform or HTTP status code
func (e *Error) WithCode(code int) *Error {
	e.Code = code
	return e
}

// TypeOf returns the type of the first *Error in err's chain, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err's chain contains an *Error of type t
func IsType(err error, t ErrorType) bool {
	var e *Error
	for err != nil {
		if errors.As(err, &e) {
			if e.Type == t {
				return true
			}
			err = e.Err
			continue
		}
		return false
	}
	return false
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError,
		ErrorTypeNavigation, ErrorTypeBlocked, ErrorTypeImageFetch:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing,
		ErrorTypeSessionExpired, ErrorTypeAccountNotEligible,
		ErrorTypeLoginTimeout, ErrorTypeVerificationTimeout:
		return false
	default:
		return false
	}
}

// RequiresOperator reports whether err can only be resolved by a human:
// new credentials, a linked account, or a completed verification.
func RequiresOperator(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeSessionExpired, ErrorTypeAccountNotEligible,
		ErrorTypeLoginTimeout, ErrorTypeVerificationTimeout:
		return true
	}
	return false
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429:
		return true
	case 500, 502, 503, 504:
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
