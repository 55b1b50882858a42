package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/jwt-auth-api/internal/middleware"
	"github.com/noah-isme/jwt-auth-api/internal/models"
	"github.com/noah-isme/jwt-auth-api/internal/service"
	"github.com/noah-isme/jwt-auth-api/pkg/config"
	appErrors "github.com/noah-isme/jwt-auth-api/pkg/errors"
	"github.com/noah-isme/jwt-auth-api/pkg/response"
)

// AuthHandler wires HTTP endpoints to the session, identity and recovery
// services. The refresh token is mirrored into an HTTP-only cookie on
// every successful issuance.
type AuthHandler struct {
	sessions *service.SessionService
	identity *service.IdentityService
	recovery *service.RecoveryService
	cfg      config.RefreshConfig
}

// NewAuthHandler creates a new handler.
func NewAuthHandler(sessions *service.SessionService, identity *service.IdentityService, recovery *service.RecoveryService, cfg config.RefreshConfig) *AuthHandler {
	return &AuthHandler{sessions: sessions, identity: identity, recovery: recovery, cfg: cfg}
}

func (h *AuthHandler) deviceID(c *gin.Context) string {
	return c.GetHeader(h.cfg.DeviceHeader)
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	if token == "" {
		return
	}
	c.SetCookie(h.cfg.CookieName, token, int(h.cfg.CookieTTL.Seconds()), "/", "", false, true)
}

// tokenFromBodyOrCookie mirrors the original contract: the refresh token
// may arrive in the JSON body or fall back to the cookie.
func (h *AuthHandler) tokenFromBodyOrCookie(c *gin.Context) string {
	var req models.RevokeTokenRequest
	_ = c.ShouldBindJSON(&req)
	if req.Token != "" {
		return req.Token
	}
	if cookie, err := c.Cookie(h.cfg.CookieName); err == nil {
		return cookie
	}
	return ""
}

// Register godoc
// @Summary Register a new account
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RegisterRequest true "Register payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid register payload"))
		return
	}

	user, err := h.identity.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, user)
}

// Token godoc
// @Summary Authenticate and issue tokens
// @Description Issues a JWT plus a device-bound refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.TokenRequest true "Credentials"
// @Param X-Device-Info header string false "Device identifier"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/token [post]
func (h *AuthHandler) Token(c *gin.Context) {
	var req models.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid login payload"))
		return
	}

	res, err := h.sessions.Login(c.Request.Context(), req, h.deviceID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	response.JSON(c, http.StatusOK, res)
}

// RefreshToken godoc
// @Summary Rotate a refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RevokeTokenRequest true "Refresh token"
// @Param X-Device-Info header string false "Device identifier"
// @Success 200 {object} response.Envelope
// @Router /auth/refresh-token [post]
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	token := h.tokenFromBodyOrCookie(c)
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	res, err := h.sessions.Refresh(c.Request.Context(), token, h.deviceID(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.setRefreshCookie(c, res.RefreshToken)
	response.JSON(c, http.StatusOK, res)
}

// RevokeToken godoc
// @Summary Revoke a single refresh token
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RevokeTokenRequest true "Refresh token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/revoke-token [post]
func (h *AuthHandler) RevokeToken(c *gin.Context) {
	token := h.tokenFromBodyOrCookie(c)
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	ok, err := h.sessions.Revoke(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "token not found"))
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "token revoked"})
}

// RevokeTokenAll godoc
// @Summary Revoke every active refresh token for the token's owner
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.RevokeTokenRequest true "Refresh token"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /auth/revoke-token-all [post]
func (h *AuthHandler) RevokeTokenAll(c *gin.Context) {
	token := h.tokenFromBodyOrCookie(c)
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	ok, err := h.sessions.RevokeAll(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "token not found"))
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "all tokens revoked"})
}

// AddRole godoc
// @Summary Assign a role to a user
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.AddRoleRequest true "Add role payload"
// @Success 200 {object} response.Envelope
// @Router /auth/add-role [post]
func (h *AuthHandler) AddRole(c *gin.Context) {
	var req models.AddRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid add role payload"))
		return
	}

	msg, err := h.identity.AddRole(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": msg})
}

// ChangePassword godoc
// @Summary Change password
// @Description Verifies the old password, applies the new one and revokes all sessions
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ChangePasswordRequest true "Change password payload"
// @Success 204 {object} response.Envelope
// @Router /auth/change-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	if err := h.identity.ChangePassword(c.Request.Context(), req); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ForgotPassword godoc
// @Summary Start the one-time code recovery flow
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.ForgotPasswordRequest true "Forgot password payload"
// @Success 200 {object} response.Envelope
// @Router /auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	code, err := h.recovery.ForgotPassword(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The code is relayed out-of-band; returning it here stands in for
	// the delivery channel.
	response.JSON(c, http.StatusOK, gin.H{"code": code})
}

// VerifyCode godoc
// @Summary Verify a one-time code and reset the password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param payload body models.VerifyCodeRequest true "Verify code payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /auth/verify-code [post]
func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req models.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	temp, err := h.recovery.VerifyAndReset(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, gin.H{"message": "password reset", "password": temp})
}

// Sessions godoc
// @Summary List the caller's refresh tokens
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /auth/sessions [get]
func (h *AuthHandler) Sessions(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	tokens, err := h.sessions.Sessions(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, tokens)
}

// SessionsByUser godoc
// @Summary List a user's refresh tokens (administrators only)
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /auth/users/{id}/sessions [get]
func (h *AuthHandler) SessionsByUser(c *gin.Context) {
	tokens, err := h.sessions.Sessions(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, tokens)
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
