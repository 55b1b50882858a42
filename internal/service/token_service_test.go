package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/jwt-auth-api/internal/models"
)

func newTestTokenService() *TokenService {
	return NewTokenService(TokenConfig{
		Secret:   "secret",
		Issuer:   "jwt-auth-api",
		Audience: []string{"jwt-auth-api"},
		Duration: 30 * time.Minute,
	})
}

func TestTokenServiceRoundTrip(t *testing.T) {
	svc := newTestTokenService()
	user := &models.User{
		ID:       "u1",
		Email:    "user@example.com",
		Username: "user1",
		Roles:    []string{models.RoleAdministrator, models.RoleUser},
	}

	signed, expiresAt, err := svc.IssueForUser(user, nil)
	require.NoError(t, err)
	require.NotEmpty(t, signed)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), expiresAt, 5*time.Second)

	claims, err := svc.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, user.Username, claims.Subject)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, user.Email, claims.Email)
	assert.ElementsMatch(t, user.Roles, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "jwt-auth-api", claims.Issuer)
}

func TestTokenServiceExternalClaims(t *testing.T) {
	svc := newTestTokenService()
	user := &models.User{ID: "u1", Email: "user@example.com", Username: "user1"}

	claims := svc.Claims(user, []models.Claim{{Name: "tenant", Value: "acme"}})

	var names []string
	for _, c := range claims {
		names = append(names, c.Name)
	}
	// Registered claims first, then external, then role entries.
	assert.Equal(t, []string{"sub", "jti", "email", "uid", "tenant"}, names)
}

func TestTokenServiceUniqueTokenID(t *testing.T) {
	svc := newTestTokenService()
	user := &models.User{ID: "u1", Email: "user@example.com", Username: "user1"}

	first, _, err := svc.IssueForUser(user, nil)
	require.NoError(t, err)
	second, _, err := svc.IssueForUser(user, nil)
	require.NoError(t, err)

	c1, err := svc.Decode(first)
	require.NoError(t, err)
	c2, err := svc.Decode(second)
	require.NoError(t, err)
	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestTokenServiceDecodeRejectsWrongKey(t *testing.T) {
	svc := newTestTokenService()
	other := NewTokenService(TokenConfig{Secret: "other", Issuer: "jwt-auth-api", Duration: time.Minute})
	user := &models.User{ID: "u1", Email: "user@example.com", Username: "user1"}

	signed, _, err := other.IssueForUser(user, nil)
	require.NoError(t, err)

	_, err = svc.Decode(signed)
	require.Error(t, err)
}
