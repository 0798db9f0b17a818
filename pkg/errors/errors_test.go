package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormat(t *testing.T) {
	err := NewWithCode(ErrorTypeServerError, 503, "upstream unavailable")
	assert.Equal(t, "server_error error (code 503): upstream unavailable", err.Error())

	err = New(ErrorTypeInvalidInput, "unknown query option %q", "trending")
	assert.Equal(t, `invalid_input error: unknown query option "trending"`, err.Error())
}

func TestErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("collecting: %w", New(ErrorTypeAuth, "token refresh failed"))

	var apiErr *Error
	assert.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, ErrorTypeAuth, apiErr.Type)
}

func TestFetchErrorContext(t *testing.T) {
	err := &FetchError{
		Mode:       "search",
		Input:      "climate",
		ChunkStart: "20230101",
		ChunkEnd:   "20230131",
		Page:       3,
		Err:        New(ErrorTypeServerError, "status 502"),
	}

	msg := err.Error()
	assert.Contains(t, msg, "mode=search")
	assert.Contains(t, msg, "chunk=20230101..20230131")
	assert.Contains(t, msg, "page=3")

	var apiErr *Error
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, ErrorTypeServerError, apiErr.Type)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		want      bool
	}{
		{ErrorTypeNetwork, true},
		{ErrorTypeRateLimit, true},
		{ErrorTypeServerError, true},
		{ErrorTypeAuth, false},
		{ErrorTypeInvalidInput, false},
		{ErrorTypeInvalidRange, false},
		{ErrorTypeNotFound, false},
		{ErrorTypeFetch, false},
		{ErrorTypeUnknown, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.errorType), "type %s", tt.errorType)
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, IsRetryableStatusCode(0))
	assert.True(t, IsRetryableStatusCode(429))
	assert.True(t, IsRetryableStatusCode(500))
	assert.True(t, IsRetryableStatusCode(503))
	assert.True(t, IsRetryableStatusCode(599))
	assert.False(t, IsRetryableStatusCode(400))
	assert.False(t, IsRetryableStatusCode(401))
	assert.False(t, IsRetryableStatusCode(403))
	assert.False(t, IsRetryableStatusCode(404))
}
