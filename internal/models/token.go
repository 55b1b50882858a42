package models

import "time"

// RefreshToken represents a persisted, device-bound refresh token.
// Rotation overwrites Token and ExpiresAt in place; revocation sets
// RevokedAt. Rows are never deleted by the session flows.
type RefreshToken struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"user_id"`
	Token     string     `db:"token" json:"token"`
	DeviceID  string     `db:"device_id" json:"device_id"`
	ExpiresAt time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	RevokedAt *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
}

// IsExpired reports whether the token lifetime has elapsed.
func (t *RefreshToken) IsExpired() bool {
	return !time.Now().UTC().Before(t.ExpiresAt)
}

// IsActive reports whether the token is neither revoked nor expired.
func (t *RefreshToken) IsActive() bool {
	return t.RevokedAt == nil && !t.IsExpired()
}
