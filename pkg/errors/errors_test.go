package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Sentinel error identity ---

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrInvalidInput, ErrUnauthorized, ErrForbidden,
		ErrInternal, ErrConflict, ErrServiceUnavail, ErrSessionExpired,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j],
				"sentinels %d and %d should be distinct", i, j)
		}
	}
}

// --- AppError behavior ---

func TestAppError_ErrorString_WithWrappedError(t *testing.T) {
	inner := fmt.Errorf("connection reset")
	appErr := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: inner}
	assert.Contains(t, appErr.Error(), "INTERNAL_ERROR")
	assert.Contains(t, appErr.Error(), "something broke")
	assert.Contains(t, appErr.Error(), "connection reset")
}

func TestAppError_ErrorString_WithoutWrappedError(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "post not found"}
	assert.Equal(t, "NOT_FOUND: post not found", appErr.Error())
}

func TestAppError_Unwrap(t *testing.T) {
	appErr := &AppError{Code: "NOT_FOUND", Message: "nope", Err: ErrNotFound}
	assert.True(t, errors.Is(appErr, ErrNotFound))
	assert.Nil(t, (&AppError{Code: "TEST"}).Unwrap())
}

// --- Constructor functions ---

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("blog", "p1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"invalid input", InvalidInput("title is required"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("invalid credentials"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"session expired", SessionExpired("token expired"), "SESSION_EXPIRED", http.StatusUnauthorized, ErrSessionExpired},
		{"forbidden", Forbidden("not allowed"), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"conflict", Conflict("slug taken"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"unavailable", Unavailable("maintenance"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.True(t, errors.Is(tt.err, tt.sentinel))
		})
	}
}

func TestNotFound_MessageNamesResource(t *testing.T) {
	err := NotFound("blog", "p1")
	assert.Contains(t, err.Message, "blog")
	assert.Contains(t, err.Message, "p1")
}

func TestInternal(t *testing.T) {
	err := Internal(fmt.Errorf("decode failure"))
	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.Contains(t, err.Error(), "decode failure")
}

// --- UserMessage ---

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "slug taken", UserMessage(fmt.Errorf("create: %w", Conflict("slug taken"))))
	assert.Equal(t, GenericMessage, UserMessage(fmt.Errorf("dial tcp: refused")))
	assert.Equal(t, GenericMessage, UserMessage(&AppError{Code: "X"}))
}

func TestIsUnauthorized(t *testing.T) {
	assert.True(t, IsUnauthorized(Unauthorized("bad password")))
	assert.True(t, IsUnauthorized(fmt.Errorf("list: %w", SessionExpired("expired"))))
	assert.False(t, IsUnauthorized(Forbidden("no")))
	assert.False(t, IsUnauthorized(nil))
}

// --- HTTPStatus ---

func TestHTTPStatus_AppError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(NotFound("team", "1")))
}

func TestHTTPStatus_SentinelErrors(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrSessionExpired, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrServiceUnavail, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestHTTPStatus_WrappedSentinel(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("outer: %w", ErrNotFound)))
}

func TestHTTPStatus_UnknownError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(fmt.Errorf("unknown")))
}
