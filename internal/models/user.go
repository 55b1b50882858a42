package models

import (
	"strings"
	"time"
)

// Role names recognised by the role assignment endpoint.
const (
	RoleAdministrator = "Administrator"
	RoleModerator     = "Moderator"
	RoleUser          = "User"
)

// DefaultRole is assigned on registration.
const DefaultRole = RoleUser

// KnownRoles lists every assignable role.
var KnownRoles = []string{RoleAdministrator, RoleModerator, RoleUser}

// CanonicalRole matches name against the assignable roles
// case-insensitively, returning the canonical spelling.
func CanonicalRole(name string) (string, bool) {
	for _, r := range KnownRoles {
		if strings.EqualFold(r, name) {
			return r, true
		}
	}
	return "", false
}

// User represents an account stored in the users table. The password hash
// is owned by the identity service and never serialised.
type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	PhoneNumber  string    `db:"phone_number" json:"phone_number,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	// Roles is loaded from the user_roles table alongside the user row.
	Roles []string `db:"-" json:"roles"`
}
