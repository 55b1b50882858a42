package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/jwt-auth-api/internal/models"
	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
)

// TokenConfig defines signing parameters for access tokens.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience []string
	Duration time.Duration
}

// TokenService issues and decodes HMAC-SHA256 signed access tokens. Issue
// is a pure function of its inputs and the clock; no state is kept.
type TokenService struct {
	config TokenConfig
}

// NewTokenService constructs a TokenService.
func NewTokenService(config TokenConfig) *TokenService {
	return &TokenService{config: config}
}

// Claims assembles the ordered claim list for a user: the registered set
// (sub, jti, email, uid), then any external claims, then one roles entry
// per assigned role.
func (s *TokenService) Claims(user *models.User, external []models.Claim) []models.Claim {
	claims := []models.Claim{
		{Name: "sub", Value: user.Username},
		{Name: "jti", Value: uuid.NewString()},
		{Name: "email", Value: user.Email},
		{Name: "uid", Value: user.ID},
	}
	claims = append(claims, external...)
	for _, role := range user.Roles {
		claims = append(claims, models.Claim{Name: "roles", Value: role})
	}
	return claims
}

// Issue signs the claim list into a time-bounded JWT. Repeated roles
// entries accumulate into a single array claim on the wire.
func (s *TokenService) Issue(claims []models.Claim) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.Duration)

	payload := jwt.MapClaims{
		"iss": s.config.Issuer,
		"iat": jwt.NewNumericDate(issuedAt),
		"nbf": jwt.NewNumericDate(issuedAt),
		"exp": jwt.NewNumericDate(expiresAt),
	}
	if len(s.config.Audience) > 0 {
		payload["aud"] = jwt.ClaimStrings(s.config.Audience)
	}

	var roles []string
	for _, claim := range claims {
		if claim.Name == "roles" {
			if role, ok := claim.Value.(string); ok {
				roles = append(roles, role)
				continue
			}
		}
		payload[claim.Name] = claim.Value
	}
	if roles != nil {
		payload["roles"] = roles
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// IssueForUser is the common path: assemble the user's claims and sign.
func (s *TokenService) IssueForUser(user *models.User, external []models.Claim) (string, time.Time, error) {
	return s.Issue(s.Claims(user, external))
}

// Decode parses and validates a signed token, returning its claims.
func (s *TokenService) Decode(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}
