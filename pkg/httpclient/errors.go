package httpclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// ErrorEnvelope covers the two error shapes the admin API produces:
//
//	{"success":false,"message":"Invalid credentials"}
//	{"error":{"code":"NOT_FOUND","message":"Blog post not found"}}
//
// Error is kept raw because some handlers send it as a plain string.
type ErrorEnvelope struct {
	Message string          `json:"message"`
	Error   json.RawMessage `json:"error"`
}

type structuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, source string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", source, resp.StatusCode, err)
	}
	return ParseErrorBody(resp.StatusCode, body, source)
}

// ParseErrorBody translates a status code and raw error body into an AppError
// carrying the server-reported message, or a generic error when the body has
// no recognisable envelope.
func ParseErrorBody(status int, body []byte, source string) error {
	code, message, ok := decodeEnvelope(body)
	if !ok {
		raw := strings.TrimSpace(string(body))
		if raw == "" {
			raw = http.StatusText(status)
		}
		return fmt.Errorf("%s returned status %d: %s", source, status, raw)
	}
	return mapStatus(status, code, message)
}

func decodeEnvelope(body []byte) (code, message string, ok bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return "", "", false
	}

	var env ErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", "", false
	}

	if len(env.Error) > 0 && !bytes.Equal(env.Error, []byte("null")) {
		var se structuredError
		if json.Unmarshal(env.Error, &se) == nil && se.Message != "" {
			return se.Code, se.Message, true
		}
		var s string
		if json.Unmarshal(env.Error, &s) == nil && s != "" && env.Message == "" {
			return "", s, true
		}
	}

	if env.Message != "" {
		return "", env.Message, true
	}
	return "", "", false
}

// mapStatus translates an HTTP status code and error code into an AppError
// that preserves the server's message verbatim for display.
func mapStatus(status int, code, message string) error {
	var appErr *apperrors.AppError

	switch {
	case status == http.StatusNotFound:
		appErr = &apperrors.AppError{Code: "NOT_FOUND", Message: message, Status: status, Err: apperrors.ErrNotFound}
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		appErr = apperrors.InvalidInput(message)
		appErr.Status = status
	case status == http.StatusConflict:
		appErr = apperrors.Conflict(message)
	case status == http.StatusUnauthorized:
		appErr = apperrors.Unauthorized(message)
	case status == http.StatusForbidden:
		appErr = apperrors.Forbidden(message)
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		appErr = apperrors.Unavailable(message)
		appErr.Status = status
	case status >= 500:
		appErr = &apperrors.AppError{Code: "INTERNAL_ERROR", Message: message, Status: status, Err: apperrors.ErrInternal}
	default:
		appErr = &apperrors.AppError{Code: http.StatusText(status), Message: message, Status: status}
	}

	if code != "" {
		appErr.Code = code
	}
	return appErr
}
