package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/ubuygold/gotarot/internal/admin"
	"github.com/ubuygold/gotarot/internal/auth"
	"github.com/ubuygold/gotarot/internal/config"
	"github.com/ubuygold/gotarot/internal/credential"
	"github.com/ubuygold/gotarot/internal/db"
	"github.com/ubuygold/gotarot/internal/logger"
	"github.com/ubuygold/gotarot/internal/oracle"
	"github.com/ubuygold/gotarot/internal/quota"
	"github.com/ubuygold/gotarot/internal/reading"
	"github.com/ubuygold/gotarot/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
)

// customRecovery is a middleware that recovers from panics and handles http.ErrAbortHandler gracefully.
func customRecovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if recovered := recover(); recovered != nil {
				if recovered == http.ErrAbortHandler {
					log.Warn("Client connection aborted", "path", c.Request.URL.Path)
					c.Abort()
					return
				}

				log.Error("Panic recovered",
					"error", recovered,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()
		c.Next()
	}
}

// services are the collaborators the router needs.
type services struct {
	store     *credential.Store
	ledger    *quota.Ledger
	generator oracle.Generator
}

func newServices(cfg *config.Config, log *slog.Logger, dbService db.Service, generator oracle.Generator) (*services, error) {
	hasher, err := credential.NewHasher(cfg.Auth.PasswordHasher)
	if err != nil {
		return nil, err
	}
	return &services{
		store:     credential.NewStore(dbService, hasher, log),
		ledger:    quota.NewLedger(dbService, log),
		generator: generator,
	}, nil
}

func setupRouter(cfg *config.Config, log *slog.Logger, svc *services) http.Handler {
	router := gin.New()
	router.Use(customRecovery(log))
	if cfg.Debug {
		router.Use(logger.Middleware(log))
	}

	gateOpts := auth.GateOptions{EnforceStatus: cfg.StatusEnforced()}
	api := router.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	login := []gin.HandlerFunc{auth.LoginHandler(svc.store, gateOpts, log)}
	if cfg.Auth.LoginRatePerMinute > 0 {
		login = append([]gin.HandlerFunc{auth.NewLoginLimiter(cfg.Auth.LoginRatePerMinute).Middleware()}, login...)
	}
	api.POST("/auth/login", login...)

	meter := reading.NewMeter(svc.store, svc.ledger, svc.generator, reading.Options{
		Timeout:             cfg.Gemini.Timeout,
		SerializePerAccount: cfg.SerializePerAccount(),
		Gate:                gateOpts,
	}, log)
	reading.SetupRoutes(api, meter, auth.TokenMiddleware(svc.store, gateOpts, log))

	admin.SetupRoutes(api, admin.NewHandler(svc.store, svc.ledger, log), cfg.Admin.Secret)

	return cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", auth.TokenHeader, auth.AdminSecretHeader},
	}).Handler(router)
}

// setupAndRunServer serves until ctx is cancelled, then shuts down gracefully.
func setupAndRunServer(ctx context.Context, cfg *config.Config, log *slog.Logger, dbService db.Service) error {
	gemini := oracle.NewGemini(cfg.Gemini, log)
	defer gemini.Close()
	log.Info("Oracle initialized", "model", cfg.Gemini.Model, "configured", gemini.Configured())

	svc, err := newServices(cfg, log, dbService, gemini)
	if err != nil {
		return fmt.Errorf("failed to create services: %w", err)
	}

	if cfg.SeedDemoAccounts {
		if _, err := svc.store.SeedDemoAccounts(); err != nil {
			return fmt.Errorf("failed to seed demo accounts: %w", err)
		}
	}

	sched := scheduler.NewScheduler(svc.ledger, cfg.Scheduler.UsageReset, log)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           setupRouter(cfg, log, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("Shutting down server...")

	// The server has 5 seconds to finish the requests it is currently handling.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("Server exiting")
	return nil
}

func main() {
	cfg, warning, err := config.LoadConfig("config.yaml")
	if err != nil {
		// Use a temporary logger for startup errors
		slog.Error("Error loading configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Debug)
	log.Info("Logger initialized", "debug_mode", cfg.Debug)
	if warning != "" {
		log.Warn(warning)
	}

	dbService, err := db.NewService(cfg.Database)
	if err != nil {
		log.Error("Error initializing database", "error", err)
		os.Exit(1)
	}
	log.Info("Database initialized", "type", cfg.Database.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := setupAndRunServer(ctx, cfg, log, dbService); err != nil {
		log.Error("Server error", "error", err)
		os.Exit(1)
	}
}
