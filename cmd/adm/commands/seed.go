package commands

import (
	"context"
	"fmt"

	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	contextutils "qrfeedback/internal/utils"

	"github.com/spf13/cobra"
)

// SeedCommand returns the sample data seeding command: ten floors with two
// restrooms and one guest room each.
func SeedCommand(locationService *services.LocationService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed sample locations",
		Long:  `Seed ten floors of sample locations (two restrooms and one guest room per floor) and generate their QR codes. Existing codes are skipped.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			created := 0
			for floor := int64(1); floor <= 10; floor++ {
				entries := []struct {
					code     string
					name     string
					category string
				}{
					{fmt.Sprintf("F%02d-W", floor), fmt.Sprintf("%d. Kat - Bayan WC", floor), "toilet"},
					{fmt.Sprintf("F%02d-M", floor), fmt.Sprintf("%d. Kat - Erkek WC", floor), "toilet"},
					{fmt.Sprintf("F%02d-R", floor), fmt.Sprintf("%d. Kat - Yataklı Oda", floor), "room"},
				}
				for _, entry := range entries {
					f := floor
					loc, err := locationService.CreateLocation(ctx, entry.code, entry.name, entry.category, &f)
					if err != nil {
						if contextutils.IsError(err, contextutils.ErrRecordExists) {
							fmt.Printf("Skipped %s (already exists)\n", entry.code)
							continue
						}
						logger.Error(ctx, "Failed to seed location", err, map[string]interface{}{"code": entry.code})
						return contextutils.WrapError(err, "failed to seed location")
					}
					fmt.Printf("Created: %s (%s)\n", loc.Code, loc.Name)
					created++
				}
			}

			fmt.Printf("Seeded %d locations.\n", created)
			return nil
		},
	}
}
