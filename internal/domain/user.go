package domain

import "time"

// User is the administrator profile returned by the auth endpoints.
type User struct {
	ID               string    `json:"_id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	LastLogin        time.Time `json:"lastLogin,omitempty"`
}

// Credentials is the login form payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// TwoFactorCode is the second-factor verification payload. The API names the
// code field "token".
type TwoFactorCode struct {
	UserID string `json:"userId" validate:"required"`
	Code   string `json:"token" validate:"required,len=6,numeric"`
}

// LoginResult is the data of a successful login or verification call. Either
// Token and User are set, or RequiresTwoFactor and UserID are.
type LoginResult struct {
	Token             string `json:"token,omitempty"`
	User              *User  `json:"user,omitempty"`
	RequiresTwoFactor bool   `json:"requiresTwoFactor,omitempty"`
	UserID            string `json:"userId,omitempty"`
}

// PasswordResetRequest starts the forgotten-password flow.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordReset completes the forgotten-password flow.
type PasswordReset struct {
	Password string `json:"password" validate:"required,min=8"`
}
