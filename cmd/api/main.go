package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "orienta/docs" // This is for Swagger
	"orienta/internal/auth"
	"orienta/internal/config"
	"orienta/internal/database"
	"orienta/internal/handlers"
	"orienta/internal/logger"
	"orienta/internal/middleware"
	"orienta/internal/ml"
	"orienta/internal/repository"
	"orienta/internal/service"
	"orienta/internal/vault"
)

// @title Orienta API
// @version 1.0
// @description Versioned questionnaires for student orientation: authoring, answer capture, reports and ML scoring
// @termsOfService http://swagger.io/terms/

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	logger.Setup(logger.Config{
		Level: cfg.Log.Level,
	})

	slog.Info("Starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"env", cfg.App.Env,
		"log_level", cfg.Log.Level,
	)

	if cfg.Vault.Enabled {
		if err := applyVaultSecrets(cfg); err != nil {
			slog.Error("Failed to load secrets from Vault", "error", err)
			os.Exit(1)
		}
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func(db *database.Database) {
		if err := db.Close(); err != nil {
			slog.Error("Failed to close database connection", "error", err)
		}
	}(db)

	slog.Info("Database connection established")

	if err := db.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations completed")

	// Initialize repositories
	questionnaireRepo := repository.NewQuestionnaireRepository(db.DB)
	versionRepo := repository.NewVersionRepository(db.DB)
	structureRepo := repository.NewStructureRepository(db.DB)
	userRepo := repository.NewUserRepository(db.DB)
	responseRepo := repository.NewResponseRepository(db.DB)
	adminRepo := repository.NewAdminRepository(db.DB)
	auditRepo := repository.NewAuditRepository(db.DB)

	// Initialize services
	authService := auth.NewService(&cfg.JWT, cfg.App.Name)
	authSvc := service.NewAuthService(adminRepo, authService)
	auditSvc := service.NewAuditService(auditRepo)
	questionnaireSvc := service.NewQuestionnaireService(db.DB, questionnaireRepo, versionRepo, responseRepo)
	versionSvc := service.NewVersionService(db.DB, questionnaireRepo, versionRepo, structureRepo, responseRepo)
	structureSvc := service.NewStructureService(db.DB, questionnaireRepo, versionRepo, structureRepo, responseRepo)
	responseSvc := service.NewResponseService(db.DB, questionnaireRepo, versionRepo, structureRepo, userRepo, responseRepo)
	reportSvc := service.NewReportService(versionRepo, structureRepo, responseRepo, cfg.Report)
	mlSvc := service.NewMLService(versionRepo, structureRepo, responseRepo, ml.NewEngine(&cfg.ML), cfg.ML.Workers)

	if cfg.ML.ScoreOnFinalize {
		responseSvc.ScoreOnFinalize(mlSvc)
		slog.Info("Scoring on finalize enabled")
	}

	bootstrapCtx, cancelBootstrap := getContext(30 * time.Second)
	created, err := authSvc.BootstrapAdmin(bootstrapCtx, cfg.Admin)
	cancelBootstrap()
	if err != nil {
		slog.Error("Failed to bootstrap admin", "error", err)
		os.Exit(1)
	}
	if created {
		slog.Info("Bootstrap admin created", "email", cfg.Admin.Email)
	}

	// Initialize middleware
	serverCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	authMw := middleware.NewAuthMiddleware(authService, adminRepo)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(serverCtx, &cfg.RateLimit)
	auditMw := middleware.NewAuditMiddleware(auditSvc)

	// Initialize handlers
	base := handlers.NewBase(cfg.App.IsProduction())
	h := &routeHandlers{
		auth:          handlers.NewAuthHandler(base, authSvc, auditSvc),
		audit:         handlers.NewAuditHandler(base, auditSvc),
		questionnaire: handlers.NewQuestionnaireHandler(base, questionnaireSvc, versionSvc),
		version:       handlers.NewVersionHandler(base, versionSvc),
		structure:     handlers.NewStructureHandler(base, structureSvc),
		dynamic:       handlers.NewDynamicHandler(base, responseSvc),
		report:        handlers.NewReportHandler(base, reportSvc),
		ml:            handlers.NewMLHandler(base, mlSvc),
		health:        handlers.NewHealthHandler(db, cfg.App.Version),
	}

	mux := http.NewServeMux()
	registerRoutes(mux, h, authMw, auditMw)

	// Apply global middleware
	handler := middleware.LoggingMiddleware(
		middleware.SecurityHeaders(
			corsMw.Handler(
				rateLimiter.Limit(mux),
			),
		),
	)

	// Create server
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.TimeoutRead,
		WriteTimeout: cfg.Server.TimeoutWrite,
		IdleTimeout:  cfg.Server.TimeoutIdle,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Server shutting down...")

	ctx, cancel := getContext(cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}

// applyVaultSecrets overrides passwords and the JWT secret with the Vault KV document
func applyVaultSecrets(cfg *config.Config) error {
	client, err := vault.NewClient(&vault.Config{
		Address: cfg.Vault.Address,
		Token:   cfg.Vault.Token,
		KVMount: cfg.Vault.KVMount,
	})
	if err != nil {
		return err
	}
	if err := client.Health(); err != nil {
		return err
	}

	ctx, cancel := getContext(10 * time.Second)
	defer cancel()

	applied, err := cfg.ApplyVaultSecrets(ctx, client)
	if err != nil {
		return err
	}
	slog.Info("Secrets loaded from Vault", "path", cfg.Vault.SecretPath, "keys", applied)
	return nil
}
