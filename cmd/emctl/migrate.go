package main

import (
	"fmt"

	"eventmitra/backend/internal/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		applied, err := db.Migrate(cmd.Context(), current.pool, current.logger)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		if len(applied) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		}
		for _, version := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Applied migration %04d\n", version)
		}
		return nil
	},
}
