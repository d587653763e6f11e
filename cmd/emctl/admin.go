package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"eventmitra/backend/internal/auth"

	"github.com/spf13/cobra"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account or promote an existing one",
	Long: `Create an admin account, or reset the password and role of an existing
account with the same email.

Examples:
  # Password from the environment
  EMCTL_ADMIN_PASSWORD=... emctl create-admin --email ops@eventmitra.in --name Ops`,
	Args: cobra.NoArgs,
	RunE: runCreateAdmin,
}

func init() {
	createAdminCmd.Flags().String("email", "", "Admin email (required)")
	createAdminCmd.Flags().String("name", "Administrator", "Display name")
	createAdminCmd.Flags().String("password", "", "Password; defaults to $EMCTL_ADMIN_PASSWORD")
	_ = createAdminCmd.MarkFlagRequired("email")
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv("EMCTL_ADMIN_PASSWORD")
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return errors.New("a valid --email is required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("password: %w", err)
	}

	user, err := current.repo.UpsertAdmin(cmd.Context(), email, hash, strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	current.logger.Info("create_admin", "status", "success", "admin_id", user.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Admin ready: %s (ID: %d)\n", user.Email, user.ID)
	return nil
}
