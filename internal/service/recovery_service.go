package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/jwt-auth-api/internal/models"
	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
)

type recoveryIdentity interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	GeneratePhoneChangeCode(ctx context.Context, user *models.User, phone string) (string, error)
	VerifyPhoneChangeCode(ctx context.Context, user *models.User, code, phone string) (bool, error)
	ResetPassword(ctx context.Context, user *models.User, newPassword string) error
}

type tokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string, revokedAt time.Time) (int64, error)
}

// RecoveryService runs the one-time code password recovery flow. A
// successful reset always invalidates every active session; that is the
// point of the flow, not a side effect.
type RecoveryService struct {
	identity  recoveryIdentity
	revoker   tokenRevoker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRecoveryService constructs a RecoveryService.
func NewRecoveryService(identity recoveryIdentity, revoker tokenRevoker, validate *validator.Validate, logger *zap.Logger) *RecoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RecoveryService{identity: identity, revoker: revoker, validator: validate, logger: logger}
}

// ForgotPassword issues a one-time code bound to (user, phone). The code is
// returned to the caller for out-of-band delivery; sending it is not this
// service's concern.
func (s *RecoveryService) ForgotPassword(ctx context.Context, req models.ForgotPasswordRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid forgot password payload")
	}

	user, err := s.identity.FindByEmail(ctx, req.Email)
	if err != nil {
		return "", err
	}

	code, err := s.identity.GeneratePhoneChangeCode(ctx, user, req.PhoneNumber)
	if err != nil {
		return "", err
	}

	s.logger.Info("recovery code issued", zap.String("user_id", user.ID))
	return code, nil
}

// VerifyAndReset checks the one-time code; on success it generates a
// temporary password, applies it and cascade-revokes every active refresh
// token for the user, returning the temporary password for out-of-band
// relay. On mismatch it fails with no side effects.
func (s *RecoveryService) VerifyAndReset(ctx context.Context, req models.VerifyCodeRequest) (string, error) {
	if err := s.validator.Struct(req); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid verify code payload")
	}

	user, err := s.identity.FindByEmail(ctx, req.Email)
	if err != nil {
		return "", err
	}

	ok, err := s.identity.VerifyPhoneChangeCode(ctx, user, req.Code, req.PhoneNumber)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", appErrors.Clone(appErrors.ErrCodeMismatch, "otp mismatch")
	}

	temp := newTemporaryPassword()
	if err := s.identity.ResetPassword(ctx, user, temp); err != nil {
		return "", err
	}

	if _, err := s.revoker.RevokeAllForUser(ctx, user.ID, time.Now().UTC()); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrPersistence.Code, appErrors.ErrPersistence.Status, "failed to revoke sessions")
	}

	s.logger.Info("password reset completed", zap.String("user_id", user.ID))
	return temp, nil
}

func newTemporaryPassword() string {
	buf := make([]byte, 12)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
