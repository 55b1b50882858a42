package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/jwt-auth-api/internal/models"
)

const userColumns = `id, email, username, first_name, last_name, phone_number, password_hash, created_at, updated_at`

const tokenColumns = `id, user_id, token, device_id, expires_at, created_at, revoked_at`

// UserRepository provides database access for users, roles and their
// refresh token collections.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address, case-insensitively, with
// roles loaded.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user by identifier with roles loaded.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1 LIMIT 1`, userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	if err := r.loadRoles(ctx, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) loadRoles(ctx context.Context, user *models.User) error {
	const query = `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`
	if err := r.db.SelectContext(ctx, &user.Roles, query, user.ID); err != nil {
		return fmt.Errorf("load roles: %w", err)
	}
	return nil
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, email, username, first_name, last_name, phone_number, password_hash, created_at, updated_at) VALUES (:id, :email, :username, :first_name, :last_name, :phone_number, :password_hash, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdatePassword updates the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	const query = `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// AddRole assigns a role to a user. Re-assigning an existing role is a no-op.
func (r *UserRepository) AddRole(ctx context.Context, userID, role string) error {
	const query = `INSERT INTO user_roles (user_id, role) VALUES ($1, $2) ON CONFLICT (user_id, role) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, userID, role); err != nil {
		return fmt.Errorf("add role: %w", err)
	}
	return nil
}

// GetRoles returns the role names assigned to a user.
func (r *UserRepository) GetRoles(ctx context.Context, userID string) ([]string, error) {
	const query = `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`
	var roles []string
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("get roles: %w", err)
	}
	return roles, nil
}

// CreateRefreshToken appends a refresh token to the user's collection.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO refresh_tokens (id, user_id, token, device_id, expires_at, created_at, revoked_at) VALUES (:id, :user_id, :token, :device_id, :expires_at, :created_at, :revoked_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindActiveTokenForDevice returns the newest active token for the
// (user, device) pair. At most one is expected but not enforced by the
// schema; login reuse keeps it that way.
func (r *UserRepository) FindActiveTokenForDevice(ctx context.Context, userID, deviceID string, now time.Time) (*models.RefreshToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE user_id = $1 AND device_id = $2 AND revoked_at IS NULL AND expires_at > $3 ORDER BY created_at DESC LIMIT 1`, tokenColumns)
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, userID, deviceID, now); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active token for device: %w", err)
	}
	return &rt, nil
}

// FindTokenForDevice returns the token row matching both the token string
// and the device, regardless of its active state. A valid token string
// presented under a different device does not match.
func (r *UserRepository) FindTokenForDevice(ctx context.Context, token, deviceID string) (*models.RefreshToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE token = $1 AND device_id = $2 LIMIT 1`, tokenColumns)
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token, deviceID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find token for device: %w", err)
	}
	return &rt, nil
}

// FindToken returns the token row matching the token string on any device.
func (r *UserRepository) FindToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE token = $1 LIMIT 1`, tokenColumns)
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find token: %w", err)
	}
	return &rt, nil
}

// RotateRefreshToken replaces the token value and expiry in place. The row
// keeps its identity, device binding and creation timestamp; the previous
// token string stops matching anything stored.
func (r *UserRepository) RotateRefreshToken(ctx context.Context, id, newToken string, expiresAt time.Time) error {
	const query = `UPDATE refresh_tokens SET token = $2, expires_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, newToken, expiresAt); err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	return nil
}

// RevokeRefreshToken marks the token revoked if it is currently active.
// The false result does not distinguish a missing token from one already
// revoked or expired.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, token string, revokedAt time.Time) (bool, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE token = $1 AND revoked_at IS NULL AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, token, revokedAt)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	return rows > 0, nil
}

// RevokeAllForUser revokes every active token across all of the user's
// devices in a single statement, returning how many were revoked.
func (r *UserRepository) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`
	res, err := r.db.ExecContext(ctx, query, userID, revokedAt)
	if err != nil {
		return 0, fmt.Errorf("revoke all for user: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke all for user: %w", err)
	}
	return rows, nil
}

// ListRefreshTokens returns the user's full token collection, newest first.
func (r *UserRepository) ListRefreshTokens(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	query := fmt.Sprintf(`SELECT %s FROM refresh_tokens WHERE user_id = $1 ORDER BY created_at DESC`, tokenColumns)
	var tokens []models.RefreshToken
	if err := r.db.SelectContext(ctx, &tokens, query, userID); err != nil {
		return nil, fmt.Errorf("list refresh tokens: %w", err)
	}
	return tokens, nil
}

// PruneExpired deletes tokens whose expiry is older than the retention
// window. Called only when pruning is enabled; the default keeps every row.
func (r *UserRepository) PruneExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune expired tokens: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune expired tokens: %w", err)
	}
	return rows, nil
}
