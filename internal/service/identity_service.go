package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/jwt-auth-api/internal/models"
	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
)

type identityRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	AddRole(ctx context.Context, userID, role string) error
	GetRoles(ctx context.Context, userID string) ([]string, error)
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
}

type codeStore interface {
	Set(ctx context.Context, userID, phone, code string, ttl time.Duration) error
	Get(ctx context.Context, userID, phone string) (string, error)
	Delete(ctx context.Context, userID, phone string) error
}

// IdentityConfig tunes the identity collaborator.
type IdentityConfig struct {
	CodeTTL time.Duration
}

// IdentityService owns password hashing and verification, registration,
// role assignment and one-time codes. Session flows never touch a hash
// directly.
type IdentityService struct {
	repo      identityRepository
	codes     codeStore
	validator *validator.Validate
	logger    *zap.Logger
	config    IdentityConfig
}

// NewIdentityService constructs an IdentityService instance.
func NewIdentityService(repo identityRepository, codes codeStore, validate *validator.Validate, logger *zap.Logger, config IdentityConfig) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.CodeTTL <= 0 {
		config.CodeTTL = 10 * time.Minute
	}
	return &IdentityService{repo: repo, codes: codes, validator: validate, logger: logger, config: config}
}

// Verify looks up the user by email and checks the password. The plaintext
// is never logged or returned.
func (s *IdentityService) Verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no accounts registered with %s", email))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, fmt.Sprintf("incorrect credentials for user %s", user.Email))
	}

	return user, nil
}

// Register creates a new account with the default role. A duplicate email
// is reported as a conflict without touching the store.
func (s *IdentityService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid register payload")
	}

	existing, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to check email")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s is already registered", req.Email))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to create user")
	}
	if err := s.repo.AddRole(ctx, user.ID, models.DefaultRole); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to assign default role")
	}
	user.Roles = []string{models.DefaultRole}

	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return user, nil
}

// AddRole assigns a role after re-verifying the caller's credentials. The
// role name is matched case-insensitively against the known set.
func (s *IdentityService) AddRole(ctx context.Context, req models.AddRoleRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid add role payload")
	}

	user, err := s.Verify(ctx, req.Email, req.Password)
	if err != nil {
		return "", err
	}

	role, ok := models.CanonicalRole(req.Role)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("role %s not found", req.Role))
	}

	if err := s.repo.AddRole(ctx, user.ID, role); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to add role")
	}

	return fmt.Sprintf("added %s to user %s", role, user.Email), nil
}

// ChangePassword verifies the old password, stores the new hash and
// cascade-revokes every active refresh token so all sessions re-login.
func (s *IdentityService) ChangePassword(ctx context.Context, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.Verify(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}

	if err := s.setPassword(ctx, user, req.NewPassword); err != nil {
		return err
	}

	if _, err := s.repo.RevokeAllForUser(ctx, user.ID, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to revoke sessions")
	}

	s.logger.Info("password changed", zap.String("user_id", user.ID))
	return nil
}

// GeneratePhoneChangeCode issues a one-time code bound to (user, phone).
func (s *IdentityService) GeneratePhoneChangeCode(ctx context.Context, user *models.User, phone string) (string, error) {
	code, err := generateNumericCode(6)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate code")
	}
	if err := s.codes.Set(ctx, user.ID, phone, code, s.config.CodeTTL); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to store code")
	}
	return code, nil
}

// VerifyPhoneChangeCode checks and consumes the pending one-time code.
func (s *IdentityService) VerifyPhoneChangeCode(ctx context.Context, user *models.User, code, phone string) (bool, error) {
	stored, err := s.codes.Get(ctx, user.ID, phone)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) && appErr.Code == appErrors.ErrCodeNotFound.Code {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to load code")
	}
	if stored != code {
		return false, nil
	}
	if err := s.codes.Delete(ctx, user.ID, phone); err != nil {
		s.logger.Warn("failed to consume recovery code", zap.Error(err))
	}
	return true, nil
}

// ResetPassword applies a new password without checking the old one. Used
// by the recovery flow after the one-time code has been verified.
func (s *IdentityService) ResetPassword(ctx context.Context, user *models.User, newPassword string) error {
	return s.setPassword(ctx, user, newPassword)
}

// FindByEmail exposes the identity store lookup to collaborating services.
func (s *IdentityService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no accounts registered with %s", email))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to fetch user")
	}
	return user, nil
}

func (s *IdentityService) setPassword(ctx context.Context, user *models.User, newPassword string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, string(hash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to update password")
	}
	user.PasswordHash = string(hash)
	return nil
}

func generateNumericCode(digits int) (string, error) {
	max := big.NewInt(1)
	for i := 0; i < digits; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
