package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
)

// CodeRepository stores one-time recovery codes in Redis with a TTL.
// Codes are bound to a (user, phone) pair and consumed on verification.
type CodeRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCodeRepository constructs a code repository. A nil client degrades
// every lookup to a miss, which disables the recovery flow.
func NewCodeRepository(client *redis.Client, logger *zap.Logger) *CodeRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeRepository{client: client, logger: logger}
}

func codeKey(userID, phone string) string {
	return fmt.Sprintf("recovery:code:%s:%s", userID, phone)
}

// Set stores the code for the (user, phone) pair, replacing any previous one.
func (r *CodeRepository) Set(ctx context.Context, userID, phone, code string, ttl time.Duration) error {
	if r.client == nil {
		return appErrors.Clone(appErrors.ErrPersistence, "code store unavailable")
	}
	if err := r.client.Set(ctx, codeKey(userID, phone), code, ttl).Err(); err != nil {
		return fmt.Errorf("redis set recovery code: %w", err)
	}
	return nil
}

// Get returns the stored code, or ErrCodeNotFound if none is pending.
func (r *CodeRepository) Get(ctx context.Context, userID, phone string) (string, error) {
	if r.client == nil {
		return "", appErrors.ErrCodeNotFound
	}
	code, err := r.client.Get(ctx, codeKey(userID, phone)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", appErrors.ErrCodeNotFound
		}
		return "", fmt.Errorf("redis get recovery code: %w", err)
	}
	return code, nil
}

// Delete consumes the code after a successful verification.
func (r *CodeRepository) Delete(ctx context.Context, userID, phone string) error {
	if r.client == nil {
		return nil
	}
	if err := r.client.Del(ctx, codeKey(userID, phone)).Err(); err != nil {
		r.logger.Warn("failed to delete recovery code", zap.Error(err))
		return fmt.Errorf("redis delete recovery code: %w", err)
	}
	return nil
}
