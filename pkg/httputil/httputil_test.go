package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/logger"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestWriteJSON_SetsContentTypeAndStatus(t *testing.T) {
	for _, code := range []int{http.StatusOK, http.StatusCreated, http.StatusNotFound} {
		rec := httptest.NewRecorder()
		WriteJSON(rec, code, Response{})
		assert.Equal(t, code, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestWriteData(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteData(rec, http.StatusOK, map[string]string{"title": "Hello"})

	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]any{"title": "Hello"}, resp.Data)
	assert.Nil(t, resp.Error)
}

func TestWriteRedirect(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteRedirect(rec, http.StatusOK, nil, "/dashboard")

	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "/dashboard", resp.Redirect)
}

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/views/blog/p1", nil)

	WriteError(rec, req, apperrors.NotFound("blog", "p1"), logger.Discard())

	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "blog with id p1 not found", resp.Error.Message)
	assert.False(t, resp.Success)
}

func TestWriteError_WrappedAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/login", nil)

	err := fmt.Errorf("login: %w", apperrors.Unauthorized("Invalid credentials"))
	WriteError(rec, req, err, logger.Discard())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decode(t, rec).Error.Message)
}

func TestWriteError_IncludesCorrelationID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.WithCorrelationID(context.Background(), "corr-42"))

	WriteError(rec, req, apperrors.Conflict("slug taken"), logger.Discard())

	assert.Equal(t, "corr-42", decode(t, rec).Error.RequestID)
}

func TestWriteError_PlainErrorIsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(rec, req, errors.New("dial tcp: connection refused"), logger.Discard())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, apperrors.GenericMessage, resp.Error.Message)
	assert.NotContains(t, resp.Error.Message, "dial tcp")
}

func TestWriteError_SentinelStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	WriteError(rec, req, fmt.Errorf("wrap: %w", apperrors.ErrSessionExpired), logger.Discard())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type loginBody struct {
	Email string `json:"email" validate:"required,email"`
}

func TestDecodeJSON(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"admin@kuros.dev"}`))
		var body loginBody
		assert.True(t, DecodeJSON(rec, req, &body))
		assert.Equal(t, "admin@kuros.dev", body.Email)
	})

	t.Run("malformed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		var body loginBody
		assert.False(t, DecodeJSON(rec, req, &body))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", decode(t, rec).Error.Code)
	})

	t.Run("invalid field", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope"}`))
		var body loginBody
		assert.False(t, DecodeJSON(rec, req, &body))
		resp := decode(t, rec)
		assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
		assert.Equal(t, "must be a valid email address", resp.Error.Fields["email"])
	})
}
