package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/jwt-auth-api/internal/models"
	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
)

type mockSessionRepo struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens []*models.RefreshToken

	created int
}

func newMockSessionRepo(users ...*models.User) *mockSessionRepo {
	m := &mockSessionRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindActiveTokenForDevice(ctx context.Context, userID, deviceID string, now time.Time) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.UserID == userID && t.DeviceID == deviceID && t.RevokedAt == nil && now.Before(t.ExpiresAt) {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindTokenForDevice(ctx context.Context, token, deviceID string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token && t.DeviceID == deviceID {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) FindToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *token
	m.tokens = append(m.tokens, &copied)
	m.created++
	return nil
}

func (m *mockSessionRepo) RotateRefreshToken(ctx context.Context, id, newToken string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			t.Token = newToken
			t.ExpiresAt = expiresAt
		}
	}
	return nil
}

func (m *mockSessionRepo) RevokeRefreshToken(ctx context.Context, token string, revokedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.Token == token && t.RevokedAt == nil && revokedAt.Before(t.ExpiresAt) {
			at := revokedAt
			t.RevokedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSessionRepo) RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil && revokedAt.Before(t.ExpiresAt) {
			at := revokedAt
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepo) ListRefreshTokens(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RefreshToken
	for _, t := range m.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) activeCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, t := range m.tokens {
		if t.UserID == userID && t.RevokedAt == nil && now.Before(t.ExpiresAt) {
			count++
		}
	}
	return count
}

type mockVerifier struct {
	user *models.User
	err  error
}

func (m *mockVerifier) Verify(ctx context.Context, email, password string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func testUser() *models.User {
	return &models.User{
		ID:       "u1",
		Email:    "a@x.com",
		Username: "alice",
		Roles:    []string{models.RoleUser},
	}
}

func newTestSessionService(repo *mockSessionRepo, verifier *mockVerifier) *SessionService {
	return NewSessionService(repo, verifier, newTestTokenService(), nil, validator.New(), zap.NewNop(), SessionConfig{
		RefreshExpiration: 7 * 24 * time.Hour,
	})
}

func TestLoginSuccess(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	res, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)
	require.True(t, res.Authenticated)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "D1", res.DeviceID)
	assert.WithinDuration(t, time.Now().UTC().Add(7*24*time.Hour), res.RefreshTokenExpiresAt, 5*time.Second)

	claims, err := newTestTokenService().Decode(res.Token)
	require.NoError(t, err)
	assert.Equal(t, user.Username, claims.Subject)
	assert.ElementsMatch(t, user.Roles, claims.Roles)
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestSessionService(repo, &mockVerifier{err: appErrors.Clone(appErrors.ErrInvalidCredentials, "incorrect credentials for user a@x.com")})

	res, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "bad"}, "D1")
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, "incorrect credentials for user a@x.com", res.Message)
	assert.Empty(t, res.RefreshToken)
	assert.Zero(t, repo.created)
}

func TestLoginUnknownEmail(t *testing.T) {
	repo := newMockSessionRepo()
	svc := newTestSessionService(repo, &mockVerifier{err: appErrors.Clone(appErrors.ErrNotFound, "no accounts registered with b@x.com")})

	res, err := svc.Login(context.Background(), models.TokenRequest{Email: "b@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, "no accounts registered with b@x.com", res.Message)
}

func TestLoginReusesActiveDeviceToken(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	first, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)
	second, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)

	assert.Equal(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.RefreshTokenExpiresAt, second.RefreshTokenExpiresAt)
	assert.Equal(t, 1, repo.created)

	third, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D2")
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, third.RefreshToken)
	assert.Equal(t, 2, repo.created)
}

func TestConcurrentLoginsMintOneTokenPerDevice(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, repo.created)
}

func TestRefreshRotatesInPlace(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	login, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), login.RefreshToken, "D1")
	require.NoError(t, err)
	require.True(t, res.Authenticated)
	assert.NotEqual(t, login.RefreshToken, res.RefreshToken)
	assert.NotEmpty(t, res.Token)

	// Rotation overwrote the stored value: the old string matches nothing.
	stale, err := svc.Refresh(context.Background(), login.RefreshToken, "D1")
	require.NoError(t, err)
	assert.False(t, stale.Authenticated)
	assert.Equal(t, "token did not match any users", stale.Message)

	// The row was reused, not appended to.
	assert.Equal(t, 1, repo.created)
}

func TestRefreshWrongDevice(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	login, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)

	res, err := svc.Refresh(context.Background(), login.RefreshToken, "D2")
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, "token did not match any users", res.Message)
}

func TestRefreshRevokedToken(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	login, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)

	ok, err := svc.Revoke(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	require.True(t, ok)

	res, err := svc.Refresh(context.Background(), login.RefreshToken, "D1")
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, "token not active", res.Message)
}

func TestRefreshExpiredToken(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	expired := &models.RefreshToken{
		ID:        "rt1",
		UserID:    user.ID,
		Token:     "expired-token",
		DeviceID:  "D1",
		CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour),
		ExpiresAt: time.Now().UTC().Add(-24 * time.Hour),
	}
	repo.tokens = append(repo.tokens, expired)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	res, err := svc.Refresh(context.Background(), "expired-token", "D1")
	require.NoError(t, err)
	assert.False(t, res.Authenticated)
	assert.Equal(t, "token not active", res.Message)
}

func TestRevokeSemantics(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	login, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)

	ok, err := svc.Revoke(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)

	// Already revoked and never-existed are both false.
	ok, err = svc.Revoke(context.Background(), login.RefreshToken)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = svc.Revoke(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevokeAllAcrossDevices(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	devices := []string{"D1", "D2", "D3"}
	var last string
	for _, d := range devices {
		res, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, d)
		require.NoError(t, err)
		last = res.RefreshToken
	}
	require.Equal(t, len(devices), repo.activeCount(user.ID))

	ok, err := svc.RevokeAll(context.Background(), last)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, repo.activeCount(user.ID))

	ok, err = svc.RevokeAll(context.Background(), "no-such-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoginRefreshLifecycleScenario(t *testing.T) {
	user := testUser()
	repo := newMockSessionRepo(user)
	svc := newTestSessionService(repo, &mockVerifier{user: user})

	first, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)
	require.True(t, first.Authenticated)
	t1 := first.RefreshToken

	again, err := svc.Login(context.Background(), models.TokenRequest{Email: "a@x.com", Password: "pw1"}, "D1")
	require.NoError(t, err)
	assert.Equal(t, t1, again.RefreshToken)

	rotated, err := svc.Refresh(context.Background(), t1, "D1")
	require.NoError(t, err)
	require.True(t, rotated.Authenticated)
	t2 := rotated.RefreshToken
	assert.NotEqual(t, t1, t2)

	stale, err := svc.Refresh(context.Background(), t1, "D1")
	require.NoError(t, err)
	assert.False(t, stale.Authenticated)

	next, err := svc.Refresh(context.Background(), t2, "D1")
	require.NoError(t, err)
	assert.True(t, next.Authenticated)
}
