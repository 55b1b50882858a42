package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jwt-auth-api/internal/models"
)

func newUserRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func userRows(id, email string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "email", "username", "first_name", "last_name", "phone_number", "password_hash", "created_at", "updated_at"}).
		AddRow(id, email, "alice", "Alice", "Doe", "+100", "hash", now, now)
}

func tokenRows(rt models.RefreshToken) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "token", "device_id", "expires_at", "created_at", "revoked_at"}).
		AddRow(rt.ID, rt.UserID, rt.Token, rt.DeviceID, rt.ExpiresAt, rt.CreatedAt, rt.RevokedAt)
}

func TestUserRepositoryFindByEmailLoadsRoles(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, username")).
		WithArgs("a@x.com").
		WillReturnRows(userRows("u1", "a@x.com"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT role FROM user_roles")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("Administrator").AddRow("User"))

	user, err := repo.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, []string{"Administrator", "User"}, user.Roles)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByEmailNotFound(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, username")).
		WithArgs("nobody@x.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "nobody@x.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateAssignsID(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Email: "a@x.com", Username: "alice", PasswordHash: "hash"}
	require.NoError(t, repo.Create(context.Background(), user))
	require.NotEmpty(t, user.ID)
	require.False(t, user.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	rt := &models.RefreshToken{
		UserID:    "u1",
		Token:     "tok-1",
		DeviceID:  "D1",
		ExpiresAt: time.Now().UTC().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repo.CreateRefreshToken(context.Background(), rt))
	require.NotEmpty(t, rt.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindActiveTokenForDevice(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	now := time.Now().UTC()
	stored := models.RefreshToken{
		ID:        "rt-1",
		UserID:    "u1",
		Token:     "tok-1",
		DeviceID:  "D1",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token, device_id")).
		WithArgs("u1", "D1", now).
		WillReturnRows(tokenRows(stored))

	found, err := repo.FindActiveTokenForDevice(context.Background(), "u1", "D1", now)
	require.NoError(t, err)
	require.Equal(t, "tok-1", found.Token)
	require.Equal(t, "D1", found.DeviceID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRotateRefreshToken(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	expires := time.Now().UTC().Add(7 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET token = $2, expires_at = $3 WHERE id = $1")).
		WithArgs("rt-1", "tok-2", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RotateRefreshToken(context.Background(), "rt-1", "tok-2", expires))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRevokeRefreshToken(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at")).
		WithArgs("tok-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	revoked, err := repo.RevokeRefreshToken(context.Background(), "tok-1", now)
	require.NoError(t, err)
	require.True(t, revoked)

	// Already revoked or unknown: zero rows affected maps to false, not an error.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at")).
		WithArgs("tok-1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	revoked, err = repo.RevokeRefreshToken(context.Background(), "tok-1", now)
	require.NoError(t, err)
	require.False(t, revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked_at")).
		WithArgs("u1", now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.RevokeAllForUser(context.Background(), "u1", now)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryPruneExpired(t *testing.T) {
	db, mock, cleanup := newUserRepoMock(t)
	defer cleanup()

	repo := NewUserRepository(db)
	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 5))

	count, err := repo.PruneExpired(context.Background(), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(5), count)
	require.NoError(t, mock.ExpectationsWereMet())
}
