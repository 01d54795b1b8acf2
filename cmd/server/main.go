// Package main provides the entry point for the facility feedback server.
// It sets up the HTTP server, database connection, middleware, and routes.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qrfeedback/internal/config"
	"qrfeedback/internal/database"
	"qrfeedback/internal/handlers"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	contextutils "qrfeedback/internal/utils"
)

// Application encapsulates the running server and its dependencies
type Application struct {
	cfg    *config.Config
	db     *sql.DB
	server *http.Server
	logger *observability.Logger
}

// NewApplication wires the services and router into a runnable application
func NewApplication(cfg *config.Config, logger *observability.Logger) (*Application, error) {
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to initialize database")
	}

	qrService := services.NewQRService(cfg, logger)
	locationService := services.NewLocationService(db, cfg, logger, qrService)
	feedbackService := services.NewFeedbackService(db, cfg, logger)
	staffService := services.NewStaffService(db, logger)
	notifyService := services.NewNotificationService(cfg, logger)

	router := handlers.NewRouter(cfg, locationService, feedbackService, staffService, notifyService, logger)

	return &Application{
		cfg:    cfg,
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: config.ServerWriteTimeout,
		},
	}, nil
}

// Run starts the HTTP server and blocks until it stops
func (a *Application) Run() error {
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return contextutils.WrapError(err, "server failed")
	}
	return nil
}

// Shutdown gracefully stops the server and closes the database
func (a *Application) Shutdown(ctx context.Context) error {
	if err := a.server.Shutdown(ctx); err != nil {
		return contextutils.WrapError(err, "failed to shut down server")
	}
	if err := a.db.Close(); err != nil {
		return contextutils.WrapError(err, "failed to close database")
	}
	return nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup graceful shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "qrfeedback")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if tp != nil {
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(shutdownCtx); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error()})
			}
		}
	}()

	logger.Info(ctx, "Starting feedback service", map[string]interface{}{
		"port":     cfg.Server.Port,
		"logLevel": cfg.Server.LogLevel,
		"db_path":  cfg.Database.Path,
	})

	app, err := NewApplication(cfg, logger)
	if err != nil {
		logger.Error(ctx, "Failed to create application", err)
		os.Exit(1)
	}

	// Start application in a goroutine
	appErr := make(chan error, 1)
	go func() {
		if err := app.Run(); err != nil {
			appErr <- err
		}
	}()

	// Wait for shutdown signal or application error
	select {
	case <-shutdownCh:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully")
	case err := <-appErr:
		logger.Error(ctx, "Application failed", err)
		os.Exit(1)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Error during application shutdown", err)
		os.Exit(1)
	}

	logger.Info(ctx, "Shutdown completed successfully")
}
