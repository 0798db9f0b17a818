package errors

import "fmt"

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeInvalidInput ErrorType = "invalid_input"
	ErrorTypeInvalidRange ErrorType = "invalid_range"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeNetwork      ErrorType = "network"
	ErrorTypeRateLimit    ErrorType = "rate_limit"
	ErrorTypeServerError  ErrorType = "server_error"
	ErrorTypeParsing      ErrorType = "parsing"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeFetch        ErrorType = "fetch"
	ErrorTypeUnknown      ErrorType = "unknown"
)

// Error represents an API error with type information
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given type
func New(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewWithCode creates an error carrying an HTTP or vendor status code
func NewWithCode(errorType ErrorType, code int, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errorType,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	}
}

// FetchError is a page-level failure that survived retries. It carries
// enough context to let an operator re-run a narrower query.
type FetchError struct {
	Mode       string
	Input      string
	ChunkStart string
	ChunkEnd   string
	Page       int
	Err        error
}

func (e *FetchError) Error() string {
	if e.ChunkStart != "" {
		return fmt.Sprintf("fetch failed: mode=%s input=%q chunk=%s..%s page=%d: %v",
			e.Mode, e.Input, e.ChunkStart, e.ChunkEnd, e.Page, e.Err)
	}
	return fmt.Sprintf("fetch failed: mode=%s input=%q page=%d: %v", e.Mode, e.Input, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError:
		return true
	case ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeParsing, ErrorTypeInvalidInput, ErrorTypeInvalidRange, ErrorTypeFetch:
		return false
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Handled by the auth refresh path, never blind-retried
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
