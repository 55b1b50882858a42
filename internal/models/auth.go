package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenRequest holds credentials for authenticating a user.
type TokenRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AddRoleRequest assigns a role to a user after re-verifying credentials.
type AddRoleRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

// RevokeTokenRequest carries the refresh token to revoke or exchange.
type RevokeTokenRequest struct {
	Token string `json:"token"`
}

// ChangePasswordRequest updates the password after verifying the old one.
type ChangePasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// ForgotPasswordRequest starts the one-time code recovery flow.
type ForgotPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number" validate:"required"`
}

// VerifyCodeRequest completes the recovery flow.
type VerifyCodeRequest struct {
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	Code        string `json:"code" validate:"required"`
}

// AuthenticationResult is the bundle returned by login and refresh. It is
// never persisted; failures carry Authenticated=false plus a message.
type AuthenticationResult struct {
	Authenticated         bool      `json:"authenticated"`
	Message               string    `json:"message,omitempty"`
	Username              string    `json:"username,omitempty"`
	Email                 string    `json:"email,omitempty"`
	Roles                 []string  `json:"roles,omitempty"`
	Token                 string    `json:"token,omitempty"`
	RefreshToken          string    `json:"refresh_token,omitempty"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitempty"`
	DeviceID              string    `json:"device_id,omitempty"`
}

// Claim is a single typed claim entry. The codec assembles the JWT payload
// from an ordered list of these: registered claims, then external claims,
// then one entry per role.
type Claim struct {
	Name  string
	Value interface{}
}

// JWTClaims is the decoded access token payload.
type JWTClaims struct {
	UserID string   `json:"uid"`
	Email  string   `json:"email"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}
