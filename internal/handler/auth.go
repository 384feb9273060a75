package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Devmainman/kurosadmin/internal/domain"
	"github.com/Devmainman/kurosadmin/internal/notify"
	apperrors "github.com/Devmainman/kurosadmin/pkg/errors"
	"github.com/Devmainman/kurosadmin/pkg/httputil"
	"github.com/Devmainman/kurosadmin/pkg/validator"
)

const maxBodyBytes = 1 << 20

const (
	msgResetLinkSent = "If that address is registered, a reset link is on its way."
	msgPasswordReset = "Password reset. You can now log in."
)

type authHandler struct {
	session   Session
	passwords Passwords
	notifier  notify.Notifier
	logger    *slog.Logger
}

// Login handles POST /login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.Credentials
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	out, err := h.session.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteRedirect(w, http.StatusOK, out, out.Redirect)
}

// VerifyTwoFactor handles POST /verify-2fa.
func (h *authHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.TwoFactorCode
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	out, err := h.session.VerifyTwoFactor(r.Context(), req.UserID, req.Code)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteRedirect(w, http.StatusOK, out, out.Redirect)
}

// Logout handles POST /logout. It always succeeds.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	out := h.session.Logout(r.Context())
	httputil.WriteRedirect(w, http.StatusOK, nil, out.Redirect)
}

// Session handles GET /session.
func (h *authHandler) Session(w http.ResponseWriter, r *http.Request) {
	httputil.WriteData(w, http.StatusOK, h.session.Snapshot())
}

// ForgotPassword handles POST /forgot-password.
func (h *authHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.PasswordResetRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, fieldError(err), h.logger)
		return
	}

	if err := h.passwords.ForgotPassword(r.Context(), req); err != nil {
		h.passwordFailed(r.Context(), "forgot", err)
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.notifier.Success(r.Context(), msgResetLinkSent)
	httputil.WriteData(w, http.StatusOK, map[string]string{"message": msgResetLinkSent})
}

// ResetPassword handles PUT /reset-password/{token}.
func (h *authHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req domain.PasswordReset
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteError(w, r, fieldError(err), h.logger)
		return
	}

	if err := h.passwords.ResetPassword(r.Context(), chi.URLParam(r, "token"), req); err != nil {
		h.passwordFailed(r.Context(), "reset", err)
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	h.notifier.Success(r.Context(), msgPasswordReset)
	httputil.WriteRedirect(w, http.StatusOK, nil, "/login")
}

func (h *authHandler) passwordFailed(ctx context.Context, step string, err error) {
	h.logger.WarnContext(ctx, "password "+step+" failed", slog.String("error", err.Error()))
	h.notifier.Failure(ctx, apperrors.UserMessage(err))
}

// fieldError turns a validation failure into the inline form error.
func fieldError(err error) error {
	var ve *validator.ValidationError
	if errors.As(err, &ve) {
		return ve.AppError()
	}
	return err
}
