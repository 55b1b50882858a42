package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/jwt-auth-api/api/swagger"
	"github.com/noah-isme/jwt-auth-api/internal/handler"
	"github.com/noah-isme/jwt-auth-api/internal/middleware"
	"github.com/noah-isme/jwt-auth-api/internal/models"
	"github.com/noah-isme/jwt-auth-api/internal/repository"
	"github.com/noah-isme/jwt-auth-api/internal/service"
	"github.com/noah-isme/jwt-auth-api/pkg/cache"
	"github.com/noah-isme/jwt-auth-api/pkg/config"
	"github.com/noah-isme/jwt-auth-api/pkg/database"
	"github.com/noah-isme/jwt-auth-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/jwt-auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/jwt-auth-api/pkg/middleware/requestid"
)

// @title JWT Auth API
// @version 1.0.0
// @description Credential and session lifecycle service
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Recovery codes are the only Redis consumer; everything else keeps working.
		logr.Warn("redis unavailable, recovery flow disabled", zap.Error(err))
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	codeRepo := repository.NewCodeRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		Duration: cfg.JWT.Duration,
	})
	identitySvc := service.NewIdentityService(userRepo, codeRepo, validate, logr, service.IdentityConfig{
		CodeTTL: cfg.Recovery.CodeTTL,
	})
	sessionSvc := service.NewSessionService(userRepo, identitySvc, tokenSvc, metricsSvc, validate, logr, service.SessionConfig{
		RefreshExpiration: cfg.Refresh.Expiration,
	})
	recoverySvc := service.NewRecoveryService(identitySvc, userRepo, validate, logr)

	authHandler := handler.NewAuthHandler(sessionSvc, identitySvc, recoverySvc, cfg.Refresh)

	if cfg.Refresh.PruneExpiredAfter > 0 {
		go pruneExpiredTokens(userRepo, logr, cfg.Refresh.PruneExpiredAfter)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	api := r.Group(cfg.APIPrefix)
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/token", authHandler.Token)
		auth.POST("/refresh-token", authHandler.RefreshToken)
		auth.POST("/revoke-token", authHandler.RevokeToken)
		auth.POST("/revoke-token-all", authHandler.RevokeTokenAll)
		auth.POST("/add-role", authHandler.AddRole)
		auth.POST("/change-password", authHandler.ChangePassword)
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/verify-code", authHandler.VerifyCode)

		protected := auth.Group("")
		protected.Use(middleware.JWT(tokenSvc))
		{
			protected.GET("/sessions", authHandler.Sessions)
			protected.GET("/users/:id/sessions", middleware.RequireRoles(models.RoleAdministrator), authHandler.SessionsByUser)
		}
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// pruneExpiredTokens deletes token rows whose expiry is older than the
// retention window, once an hour.
func pruneExpiredTokens(repo *repository.UserRepository, logr *zap.Logger, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().UTC().Add(-retention)
		pruned, err := repo.PruneExpired(context.Background(), cutoff)
		if err != nil {
			logr.Warn("token prune failed", zap.Error(err))
			continue
		}
		if pruned > 0 {
			logr.Info("pruned expired refresh tokens", zap.Int64("count", pruned))
		}
	}
}
