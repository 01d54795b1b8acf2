// Package main provides the entry point for the feedback administration CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"qrfeedback/cmd/adm/commands"
	"qrfeedback/internal/config"
	"qrfeedback/internal/database"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"

	"github.com/spf13/cobra"
)

func main() {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Override log level for admin tool
	cfg.Server.LogLevel = "error"

	// Disable all OpenTelemetry features for the CLI to avoid connection errors
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	// Setup observability (tracing/metrics/logging)
	tp, mp, logger, err := observability.SetupObservability(&cfg.OpenTelemetry, "qrfeedback-adm")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if tp != nil {
			if err := tp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down tracer provider", map[string]interface{}{"error": err.Error()})
			}
		}
		if mp != nil {
			if err := mp.Shutdown(context.TODO()); err != nil {
				logger.Warn(ctx, "Error shutting down meter provider", map[string]interface{}{"error": err.Error()})
			}
		}
	}()

	// Initialize database connection, running migrations so the tool works
	// against a fresh database file
	dbManager := database.NewManager(logger)
	db, err := dbManager.InitDBWithConfig(cfg.Database)
	if err != nil {
		logger.Error(ctx, "Failed to connect to database", err, map[string]interface{}{"db_path": cfg.Database.Path})
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn(ctx, "Warning: failed to close database connection", map[string]interface{}{"error": err.Error()})
		}
	}()

	// Initialize services
	qrService := services.NewQRService(cfg, logger)
	locationService := services.NewLocationService(db, cfg, logger, qrService)
	staffService := services.NewStaffService(db, logger)

	// Create the root command
	rootCmd := &cobra.Command{
		Use:   "adm",
		Short: "Facility Feedback Administration Tool",
		Long: `Facility Feedback Administration Tool

A CLI tool for administering the feedback service.
Provides commands for location management, staff management, and sample data seeding.`,

		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				fmt.Printf("Error showing help: %v\n", err)
			}
		},
	}

	rootCmd.AddCommand(commands.LocationCommands(locationService, cfg, logger))
	rootCmd.AddCommand(commands.StaffCommands(staffService, logger))
	rootCmd.AddCommand(commands.SeedCommand(locationService, logger))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
