// Package main runs the provisioning backend HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brightsteps/backend/config"
	"github.com/brightsteps/backend/internal/auth"
	"github.com/brightsteps/backend/internal/identity"
	"github.com/brightsteps/backend/internal/middleware"
	"github.com/brightsteps/backend/internal/models"
	"github.com/brightsteps/backend/internal/notify"
	"github.com/brightsteps/backend/internal/provision"
	"github.com/brightsteps/backend/internal/store"
	"github.com/brightsteps/backend/internal/workflow"
	"github.com/brightsteps/backend/pkg/database"
	"github.com/brightsteps/backend/pkg/metrics"
	"github.com/brightsteps/backend/pkg/queue"
	"github.com/brightsteps/backend/pkg/redis"
	"github.com/brightsteps/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Clients: identity directory, record store, notifier.
	dir := identity.NewPostgresDirectory(pool)
	requestRepo := store.NewOnboardingRepo(pool)
	tenantRepo := store.NewTenantRepo(pool)
	profileRepo := store.NewProfileRepo(pool)
	invitationRepo := store.NewInvitationRepo(pool)
	emailLogRepo := store.NewEmailLogRepo(pool)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.NewQueueNotifier(emailLogRepo, jobQueue, logger)

	// Provisioning engine.
	engine := provision.NewEngine(dir, requestRepo, tenantRepo, profileRepo, invitationRepo, notifier, logger)
	engine.CallTimeout = time.Duration(cfg.Provision.CallTimeoutSec) * time.Second
	engine.InviteTTL = time.Duration(cfg.Provision.InviteTTLDays) * 24 * time.Hour
	engine.AppBaseURL = cfg.Email.AppBaseURL

	// Workflow API.
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(dir, profileRepo, jwtService, logger)
	onboardingHandler := workflow.NewOnboardingHandler(engine, requestRepo, logger)
	invitationHandler := workflow.NewInvitationHandler(engine, invitationRepo, logger)
	memberHandler := workflow.NewMemberHandler(engine, profileRepo, emailLogRepo, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(metrics.Middleware())

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Public: school applications and invitation redemption.
	router.POST("/onboarding/requests", onboardingHandler.Submit)
	router.POST("/invitations/redeem", invitationHandler.Redeem)
	router.POST("/auth/login", authHandler.Login)

	// Protected API (JWT required).
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		superadmin := string(models.RoleSuperadmin)
		principal := string(models.RolePrincipal)
		admin := string(models.RoleAdmin)

		api.GET("/onboarding/requests", middleware.RequireRole(superadmin), onboardingHandler.List)
		api.POST("/onboarding/requests/:id/approve", middleware.RequireRole(superadmin), onboardingHandler.Approve)
		api.POST("/onboarding/requests/:id/reject", middleware.RequireRole(superadmin), onboardingHandler.Reject)

		api.POST("/invitations", middleware.RequireRole(superadmin, principal, admin), invitationHandler.Issue)
		api.GET("/invitations", middleware.RequireRole(superadmin, principal, admin), invitationHandler.List)
		api.POST("/invitations/:code/revoke", middleware.RequireRole(superadmin, principal, admin), invitationHandler.Revoke)

		api.GET("/tenants/:id/members", memberHandler.ListMembers)
		api.GET("/tenants/:id/emails", memberHandler.ListEmails)
		api.POST("/members/:id/reset-password", middleware.RequireRole(superadmin, principal, admin), memberHandler.ResetPassword)
		api.POST("/members/:id/deactivate", middleware.RequireRole(superadmin, principal, admin), memberHandler.Deactivate)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
