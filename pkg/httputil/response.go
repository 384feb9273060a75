package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/logger"
	"github.com/Devmainman/kurosadmin/pkg/validator"
)

// Response is the JSON envelope served by the console. It mirrors the admin
// API's own envelope so views can treat both the same way.
type Response struct {
	Success  bool           `json:"success"`
	Data     any            `json:"data,omitempty"`
	Error    *ErrorResponse `json:"error,omitempty"`
	Redirect string         `json:"redirect,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData writes a success envelope around data.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Success: true, Data: data})
}

// WriteRedirect writes a success envelope telling the view where to go next.
func WriteRedirect(w http.ResponseWriter, status int, data any, redirect string) {
	WriteJSON(w, status, Response{Success: true, Data: data, Redirect: redirect})
}

// WriteError writes an error envelope. AppErrors keep their status, code and
// message; validation failures list their fields; anything else becomes a 500
// with the generic message and is logged through the request-scoped logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:      "VALIDATION_ERROR",
				Message:   valErr.Error(),
				Fields:    valErr.Fields(),
				RequestID: requestID,
			},
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := appErr.Status
		if status == 0 {
			status = apperrors.HTTPStatus(appErr.Err)
		}
		WriteJSON(w, status, Response{
			Error: &ErrorResponse{Code: appErr.Code, Message: appErr.Message, RequestID: requestID},
		})
		return
	}

	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: http.StatusText(status), Message: apperrors.GenericMessage, RequestID: requestID},
	})
}

// DecodeJSON decodes and validates a request body, writing a 400 envelope on
// failure. It returns false when the caller should stop.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := validator.DecodeAndValidate(r.Body, dst); err != nil {
		var valErr *validator.ValidationError
		if errors.As(err, &valErr) {
			WriteError(w, r, err, nil)
			return false
		}
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{Code: "INVALID_INPUT", Message: "request body must be valid JSON"},
		})
		return false
	}
	return true
}
