package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/jwt-auth-api/internal/models"
	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindActiveTokenForDevice(ctx context.Context, userID, deviceID string, now time.Time) (*models.RefreshToken, error)
	FindTokenForDevice(ctx context.Context, token, deviceID string) (*models.RefreshToken, error)
	FindToken(ctx context.Context, token string) (*models.RefreshToken, error)
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	RotateRefreshToken(ctx context.Context, id, newToken string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string, revokedAt time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
	ListRefreshTokens(ctx context.Context, userID string) ([]models.RefreshToken, error)
}

type credentialVerifier interface {
	Verify(ctx context.Context, email, password string) (*models.User, error)
}

type sessionMetrics interface {
	IncLogin(result string)
	IncRefresh(result string)
	IncRevocation(scope string)
}

// SessionConfig tunes refresh token issuance.
type SessionConfig struct {
	RefreshExpiration time.Duration
}

// SessionService orchestrates the credential lifecycle: login with
// per-device token reuse, rotation on refresh, and single or cascading
// revocation. Domain failures come back as AuthenticationResult with
// Authenticated=false; only store failures surface as errors.
type SessionService struct {
	repo      sessionRepository
	verifier  credentialVerifier
	tokens    *TokenService
	metrics   sessionMetrics
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionConfig

	// userLocks serializes login per user so two concurrent logins from
	// the same device cannot both observe "no active token" and mint two.
	userLocks sync.Map
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, verifier credentialVerifier, tokens *TokenService, metrics sessionMetrics, validate *validator.Validate, logger *zap.Logger, config SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.RefreshExpiration <= 0 {
		config.RefreshExpiration = 7 * 24 * time.Hour
	}
	return &SessionService{repo: repo, verifier: verifier, tokens: tokens, metrics: metrics, validator: validate, logger: logger, config: config}
}

func (s *SessionService) lockUser(userID string) func() {
	mu, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

func (s *SessionService) incLogin(result string) {
	if s.metrics != nil {
		s.metrics.IncLogin(result)
	}
}

func (s *SessionService) incRefresh(result string) {
	if s.metrics != nil {
		s.metrics.IncRefresh(result)
	}
}

func (s *SessionService) incRevocation(scope string) {
	if s.metrics != nil {
		s.metrics.IncRevocation(scope)
	}
}

// Login authenticates the credentials and returns the token bundle. If an
// active refresh token already exists for this exact device it is reused
// unchanged; otherwise a new one is minted and persisted immediately.
func (s *SessionService) Login(ctx context.Context, req models.TokenRequest, deviceID string) (*models.AuthenticationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.verifier.Verify(ctx, req.Email, req.Password)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			switch appErr.Code {
			case appErrors.ErrNotFound.Code, appErrors.ErrInvalidCredentials.Code:
				s.incLogin("denied")
				return &models.AuthenticationResult{Authenticated: false, Message: appErr.Message}, nil
			}
		}
		s.incLogin("error")
		return nil, err
	}

	unlock := s.lockUser(user.ID)
	defer unlock()

	now := time.Now().UTC()
	refresh, err := s.repo.FindActiveTokenForDevice(ctx, user.ID, deviceID, now)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.incLogin("error")
			return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to look up device token")
		}

		refresh = &models.RefreshToken{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Token:     newRefreshTokenValue(),
			DeviceID:  deviceID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.config.RefreshExpiration),
		}
		if err := s.repo.CreateRefreshToken(ctx, refresh); err != nil {
			s.incLogin("error")
			return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to persist refresh token")
		}
	}

	jwtToken, _, err := s.tokens.IssueForUser(user, nil)
	if err != nil {
		s.incLogin("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}

	s.incLogin("ok")
	s.logger.Info("login succeeded", zap.String("user_id", user.ID), zap.String("device_id", deviceID))

	return &models.AuthenticationResult{
		Authenticated:         true,
		Username:              user.Username,
		Email:                 user.Email,
		Roles:                 user.Roles,
		Token:                 jwtToken,
		RefreshToken:          refresh.Token,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		DeviceID:              deviceID,
	}, nil
}

// Refresh exchanges an active refresh token for a new one plus a fresh
// JWT. The token must match both the string and the device; a valid token
// presented under another device is reported as not found. Rotation
// overwrites the stored value in place, so the old string simply stops
// matching anything.
func (s *SessionService) Refresh(ctx context.Context, token, deviceID string) (*models.AuthenticationResult, error) {
	refresh, err := s.repo.FindTokenForDevice(ctx, token, deviceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.incRefresh("not_found")
			return &models.AuthenticationResult{Authenticated: false, Message: "token did not match any users"}, nil
		}
		s.incRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to look up refresh token")
	}

	if !refresh.IsActive() {
		s.incRefresh("inactive")
		return &models.AuthenticationResult{Authenticated: false, Message: "token not active"}, nil
	}

	user, err := s.repo.FindByID(ctx, refresh.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.incRefresh("not_found")
			return &models.AuthenticationResult{Authenticated: false, Message: "token did not match any users"}, nil
		}
		s.incRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load user")
	}

	now := time.Now().UTC()
	newValue := newRefreshTokenValue()
	newExpiry := now.Add(s.config.RefreshExpiration)
	if err := s.repo.RotateRefreshToken(ctx, refresh.ID, newValue, newExpiry); err != nil {
		s.incRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to rotate refresh token")
	}

	jwtToken, _, err := s.tokens.IssueForUser(user, nil)
	if err != nil {
		s.incRefresh("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue access token")
	}

	s.incRefresh("ok")
	s.logger.Info("token rotated", zap.String("user_id", user.ID), zap.String("device_id", deviceID))

	return &models.AuthenticationResult{
		Authenticated:         true,
		Username:              user.Username,
		Email:                 user.Email,
		Roles:                 user.Roles,
		Token:                 jwtToken,
		RefreshToken:          newValue,
		RefreshTokenExpiresAt: newExpiry,
		DeviceID:              deviceID,
	}, nil
}

// Revoke marks the token revoked if it is currently active. False covers
// both a missing token and one already revoked or expired.
func (s *SessionService) Revoke(ctx context.Context, token string) (bool, error) {
	ok, err := s.repo.RevokeRefreshToken(ctx, token, time.Now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to revoke token")
	}
	if ok {
		s.incRevocation("single")
	}
	return ok, nil
}

// RevokeAll resolves the owner from any one of their tokens, active or
// not, and revokes every active token across all devices in one batch.
func (s *SessionService) RevokeAll(ctx context.Context, token string) (bool, error) {
	refresh, err := s.repo.FindToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to look up refresh token")
	}

	revoked, err := s.repo.RevokeAllForUser(ctx, refresh.UserID, time.Now().UTC())
	if err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to revoke user tokens")
	}

	s.incRevocation("cascade")
	s.logger.Info("all sessions revoked", zap.String("user_id", refresh.UserID), zap.Int64("revoked", revoked))
	return true, nil
}

// Sessions lists the user's refresh token collection, newest first.
func (s *SessionService) Sessions(ctx context.Context, userID string) ([]models.RefreshToken, error) {
	tokens, err := s.repo.ListRefreshTokens(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to list sessions")
	}
	return tokens, nil
}

// newRefreshTokenValue returns a 256-bit random opaque token string.
func newRefreshTokenValue() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process cannot mint secrets at all.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
