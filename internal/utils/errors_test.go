package contextutils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorError(t *testing.T) {
	err := NewAppError(ErrorCodeInvalidInput, SeverityWarn, "Invalid input", "field must not be empty")
	assert.Contains(t, err.Error(), "INVALID_INPUT")
	assert.Contains(t, err.Error(), "Invalid input")
	assert.Contains(t, err.Error(), "field must not be empty")

	bare := NewAppError(ErrorCodeInternalError, SeverityError, "boom", "")
	assert.NotContains(t, bare.Error(), "()")
}

func TestWrapErrorPreservesCode(t *testing.T) {
	wrapped := WrapError(ErrRecordNotFound, "loading location")
	require.Error(t, wrapped)

	appErr, ok := wrapped.(*AppError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeRecordNotFound, appErr.Code)
	assert.Equal(t, "loading location", appErr.Message)
	assert.True(t, errors.Is(wrapped, ErrRecordNotFound))
}

func TestWrapErrorGenericError(t *testing.T) {
	cause := fmt.Errorf("disk full")
	wrapped := WrapError(cause, "writing artifact")

	appErr, ok := wrapped.(*AppError)
	require.True(t, ok)
	assert.Equal(t, ErrorCodeInternalError, appErr.Code)
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}

func TestWrapErrorNil(t *testing.T) {
	assert.NoError(t, WrapError(nil, "context"))
	assert.NoError(t, WrapErrorf(nil, "context %d", 1))
}

func TestWrapErrorf(t *testing.T) {
	t.Run("plain format keeps the code", func(t *testing.T) {
		wrapped := WrapErrorf(ErrRecordExists, "creating location %s", "F01-W")
		appErr, ok := wrapped.(*AppError)
		require.True(t, ok)
		assert.Equal(t, ErrorCodeRecordExists, appErr.Code)
		assert.Equal(t, "creating location F01-W", appErr.Message)
	})

	t.Run("wrap verb keeps the code", func(t *testing.T) {
		wrapped := WrapErrorf(ErrInvalidCredentials, "authenticating: %w", ErrInvalidCredentials)
		appErr, ok := wrapped.(*AppError)
		require.True(t, ok)
		assert.Equal(t, ErrorCodeInvalidCredentials, appErr.Code)
	})
}

func TestIsError(t *testing.T) {
	assert.True(t, IsError(ErrRecordNotFound, ErrRecordNotFound))
	assert.True(t, IsError(WrapError(ErrForbidden, "resolving"), ErrForbidden))
	assert.False(t, IsError(ErrRecordNotFound, ErrRecordExists))
	assert.False(t, IsError(fmt.Errorf("plain"), ErrRecordNotFound))
}

func TestGetErrorCodeAndSeverity(t *testing.T) {
	assert.Equal(t, ErrorCodeForbidden, GetErrorCode(ErrForbidden))
	assert.Equal(t, ErrorCodeInternalError, GetErrorCode(fmt.Errorf("plain")))
	assert.Equal(t, SeverityWarn, GetErrorSeverity(ErrInvalidInput))
	assert.Equal(t, SeverityError, GetErrorSeverity(fmt.Errorf("plain")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrExternalService))
	assert.True(t, IsRetryable(ErrDatabaseConnection))
	assert.False(t, IsRetryable(ErrRecordNotFound))
	assert.False(t, IsRetryable(fmt.Errorf("plain")))

	fatal := NewAppError(ErrorCodeExternalService, SeverityFatal, "down for good", "")
	assert.False(t, IsRetryable(fatal))
}

func TestToJSON(t *testing.T) {
	err := NewAppError(ErrorCodeInvalidInput, SeverityWarn, "Invalid input", "bad field")
	payload := err.ToJSON()

	assert.Equal(t, "INVALID_INPUT", payload["code"])
	assert.Equal(t, "Invalid input", payload["message"])
	assert.Equal(t, "bad field", payload["details"])
}

func TestIsValidLocationCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"F01-W", true},
		{"oda_101", true},
		{"A", true},
		{"", false},
		{"has space", false},
		{"slash/code", false},
		{"query?loc", false},
		{"amp&code", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsValidLocationCode(tt.code), tt.code)
	}
}

func TestIsValidUsername(t *testing.T) {
	assert.True(t, IsValidUsername("kat1"))
	assert.False(t, IsValidUsername(""))
	assert.False(t, IsValidUsername("has space"))
}
