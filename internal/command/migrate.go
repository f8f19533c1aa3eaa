package command

import (
	"fmt"

	"github.com/adamavenir/cwthread/internal/db"
	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the migrate command.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			statusOnly, _ := cmd.Flags().GetBool("status")
			jsonMode, _ := cmd.Flags().GetBool("json")

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer logger.Sync()

			conn, err := db.OpenDatabase(cfg.DB.Path)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer conn.Close()

			var applied []db.Migration
			if !statusOnly {
				applied, err = db.ApplyMigrations(cmd.Context(), conn)
				if err != nil {
					return writeCommandError(cmd, err)
				}
			}
			states, err := db.MigrationStatus(cmd.Context(), conn)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"database":   cfg.DB.Path,
					"applied":    len(applied),
					"migrations": states,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Database: %s\n", cfg.DB.Path)
			for _, state := range states {
				status := "pending"
				if state.AppliedAt != nil {
					status = "applied " + formatTimestamp(*state.AppliedAt)
				}
				fmt.Fprintf(out, "  %03d_%s  %s\n", state.Version, state.Name, status)
			}
			if !statusOnly {
				fmt.Fprintf(out, "Applied %s\n", pluralize(len(applied), "migration"))
			}
			return nil
		},
	}

	cmd.Flags().Bool("status", false, "only report migration status")

	return cmd
}
