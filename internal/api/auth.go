package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Devmainman/kurosadmin/internal/domain"
)

type meResponse struct {
	User *domain.User `json:"user"`
}

// Login submits credentials. The result either carries a token and user or
// announces a two-factor challenge.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.LoginResult, error) {
	var out domain.LoginResult
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/login", body: creds, out: &out, auth: authNone}); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTwoFactor answers a pending two-factor challenge.
func (c *Client) VerifyTwoFactor(ctx context.Context, code domain.TwoFactorCode) (*domain.LoginResult, error) {
	var out domain.LoginResult
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/verify-2fa", body: code, out: &out, auth: authNone}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the profile of the stored credential's owner.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	var out meResponse
	if err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me", out: &out}); err != nil {
		return nil, err
	}
	if out.User == nil {
		return nil, errMissing("user")
	}
	return out.User, nil
}

// Logout tells the server to end the session identified by token. The token
// is passed explicitly because the local store has already been cleared.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/auth/logout", auth: authExplicit, token: token})
}

// ForgotPassword asks the server to e-mail a reset link.
func (c *Client) ForgotPassword(ctx context.Context, req domain.PasswordResetRequest) error {
	return c.do(ctx, call{method: http.MethodPost, path: "/auth/forgot-password", body: req, auth: authNone})
}

// ResetPassword completes a reset with the token from the e-mailed link.
func (c *Client) ResetPassword(ctx context.Context, resetToken string, req domain.PasswordReset) error {
	path := "/auth/reset-password/" + url.PathEscape(resetToken)
	return c.do(ctx, call{method: http.MethodPut, path: path, body: req, auth: authNone})
}
