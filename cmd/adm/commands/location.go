// Package commands implements the subcommands of the adm CLI tool.
package commands

import (
	"context"
	"fmt"

	"qrfeedback/internal/config"
	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	contextutils "qrfeedback/internal/utils"

	"github.com/spf13/cobra"
)

// LocationCommands returns the location management commands
func LocationCommands(locationService *services.LocationService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	locationCmd := &cobra.Command{
		Use:   "location",
		Short: "Location management commands",
		Long: `Location management commands for the feedback service.

Available commands:
  add    - Register a new location and generate its QR code
  list   - List all locations
  status - Overwrite a location's status summary
  delete - Delete a location and its feedback`,
	}

	locationCmd.AddCommand(addLocationCmd(locationService, cfg, logger))
	locationCmd.AddCommand(listLocationsCmd(locationService, cfg, logger))
	locationCmd.AddCommand(setStatusCmd(locationService, logger))
	locationCmd.AddCommand(deleteLocationCmd(locationService, logger))

	return locationCmd
}

func addLocationCmd(locationService *services.LocationService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var category string
	var floor int64

	cmd := &cobra.Command{
		Use:   "add [code] [name]",
		Short: "Register a new location",
		Long:  `Register a new location with a unique code and generate its QR code image.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			code, name := args[0], args[1]

			var floorPtr *int64
			if cmd.Flags().Changed("floor") {
				floorPtr = &floor
			}

			loc, err := locationService.CreateLocation(ctx, code, name, category, floorPtr)
			if err != nil {
				logger.Error(ctx, "Failed to create location", err, map[string]interface{}{"code": code})
				return contextutils.WrapError(err, "failed to create location")
			}

			fmt.Printf("Created location %d: %s (%s)\n", loc.ID, loc.Name, loc.Code)
			fmt.Printf("Feedback URL: %s\n", cfg.PublicFeedbackURL(loc.Code))
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "toilet", "location category (toilet, room, ...)")
	cmd.Flags().Int64VarP(&floor, "floor", "f", 0, "floor number for staff scoping")
	return cmd
}

func listLocationsCmd(locationService *services.LocationService, cfg *config.Config, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all locations",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			locations, err := locationService.ListLocations(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to list locations", err)
				return contextutils.WrapError(err, "failed to list locations")
			}

			if len(locations) == 0 {
				fmt.Println("No locations found.")
				return nil
			}

			fmt.Printf("%-5s %-12s %-30s %-10s %-6s %-40s\n", "ID", "Code", "Name", "Category", "Floor", "Last Status")
			for _, loc := range locations {
				floor := "-"
				if loc.Floor.Valid {
					floor = fmt.Sprintf("%d", loc.Floor.Int64)
				}
				status := "-"
				if loc.Status.Valid && loc.Status.String != "" {
					status = loc.Status.String
				}
				fmt.Printf("%-5d %-12s %-30s %-10s %-6s %-40s\n", loc.ID, loc.Code, loc.Name, loc.Category, floor, status)
			}
			fmt.Printf("\nFeedback URL base: %s\n", cfg.PublicFeedbackURL("<code>"))
			return nil
		},
	}
}

func setStatusCmd(locationService *services.LocationService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "status [code] [summary]",
		Short: "Overwrite a location's status summary",
		Long:  `Overwrite the status line shown on the dashboards, for example after an on-site inspection.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			code, summary := args[0], args[1]

			loc, err := locationService.GetLocationByCode(ctx, code)
			if err != nil {
				logger.Error(ctx, "Failed to load location", err, map[string]interface{}{"code": code})
				return contextutils.WrapError(err, "failed to load location")
			}
			if err := locationService.SetStatus(ctx, loc.ID, summary); err != nil {
				logger.Error(ctx, "Failed to update location status", err, map[string]interface{}{"code": code})
				return contextutils.WrapError(err, "failed to update location status")
			}

			fmt.Printf("Updated status for %s\n", code)
			return nil
		},
	}
}

func deleteLocationCmd(locationService *services.LocationService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [code]",
		Short: "Delete a location and its feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			code := args[0]

			if err := locationService.DeleteLocation(ctx, code); err != nil {
				logger.Error(ctx, "Failed to delete location", err, map[string]interface{}{"code": code})
				return contextutils.WrapError(err, "failed to delete location")
			}

			fmt.Printf("Deleted location %s\n", code)
			return nil
		},
	}
}
