package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"qrfeedback/internal/observability"
	"qrfeedback/internal/services"
	contextutils "qrfeedback/internal/utils"

	"github.com/spf13/cobra"
)

// StaffCommands returns the staff management commands
func StaffCommands(staffService *services.StaffService, logger *observability.Logger) *cobra.Command {
	staffCmd := &cobra.Command{
		Use:   "staff",
		Short: "Staff management commands",
		Long: `Staff management commands for the feedback service.

Available commands:
  add    - Create a staff account with floor assignments
  list   - List all staff accounts
  delete - Delete a staff account`,
	}

	staffCmd.AddCommand(addStaffCmd(staffService, logger))
	staffCmd.AddCommand(listStaffCmd(staffService, logger))
	staffCmd.AddCommand(deleteStaffCmd(staffService, logger))

	return staffCmd
}

// parseFloors parses a comma-separated floor list like "1,2,3".
func parseFloors(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	floors := make([]int, 0, len(parts))
	for _, part := range parts {
		floor, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, contextutils.ErrorWithContextf("invalid floor number: %s", part)
		}
		floors = append(floors, floor)
	}
	return floors, nil
}

func addStaffCmd(staffService *services.StaffService, logger *observability.Logger) *cobra.Command {
	var floorsFlag string

	cmd := &cobra.Command{
		Use:   "add [username]",
		Short: "Create a staff account",
		Long:  `Create a staff account. The password is prompted for interactively.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			username := args[0]

			floors, err := parseFloors(floorsFlag)
			if err != nil {
				return err
			}

			fmt.Print("Password: ")
			passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password: %v", err)
			}
			password := string(passwordBytes)
			fmt.Println()

			if password == "" {
				return contextutils.ErrorWithContextf("password cannot be empty")
			}

			fmt.Print("Confirm password: ")
			confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
			if err != nil {
				return contextutils.WrapErrorf(contextutils.ErrInternalError, "failed to read password confirmation: %v", err)
			}
			fmt.Println()

			if password != string(confirmBytes) {
				return contextutils.ErrorWithContextf("passwords do not match")
			}

			user, err := staffService.CreateStaff(ctx, username, password, floors)
			if err != nil {
				logger.Error(ctx, "Failed to create staff account", err, map[string]interface{}{"username": username})
				return contextutils.WrapError(err, "failed to create staff account")
			}

			fmt.Printf("Created staff account %d: %s (floors: %v)\n", user.ID, user.Username, user.Floors)
			return nil
		},
	}
	cmd.Flags().StringVarP(&floorsFlag, "floors", "f", "", "comma-separated floor numbers, e.g. 1,2,3")
	return cmd
}

func listStaffCmd(staffService *services.StaffService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all staff accounts",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()

			staff, err := staffService.ListStaff(ctx)
			if err != nil {
				logger.Error(ctx, "Failed to list staff", err)
				return contextutils.WrapError(err, "failed to list staff")
			}

			if len(staff) == 0 {
				fmt.Println("No staff accounts found.")
				return nil
			}

			fmt.Printf("%-5s %-20s %-20s %-12s\n", "ID", "Username", "Floors", "Created")
			for _, u := range staff {
				floors := "-"
				if len(u.Floors) > 0 {
					parts := make([]string, len(u.Floors))
					for i, f := range u.Floors {
						parts[i] = strconv.Itoa(f)
					}
					floors = strings.Join(parts, ",")
				}
				fmt.Printf("%-5d %-20s %-20s %-12s\n", u.ID, u.Username, floors, u.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	}
}

func deleteStaffCmd(staffService *services.StaffService, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [username]",
		Short: "Delete a staff account",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ctx := context.Background()
			username := args[0]

			if err := staffService.DeleteStaff(ctx, username); err != nil {
				logger.Error(ctx, "Failed to delete staff account", err, map[string]interface{}{"username": username})
				return contextutils.WrapError(err, "failed to delete staff account")
			}

			fmt.Printf("Deleted staff account %s\n", username)
			return nil
		},
	}
}
