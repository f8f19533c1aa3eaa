package command

import (
	"fmt"
	"strings"

	"github.com/adamavenir/cwthread/internal/db"
	"github.com/adamavenir/cwthread/internal/types"
	"github.com/spf13/cobra"
)

// NewRenameCmd creates the rename command.
func NewRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename <thread> <new-name>",
		Short: "Rename a thread",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			newName := strings.TrimSpace(args[1])
			if newName == "" {
				return writeCommandError(cmd, fmt.Errorf("thread name cannot be empty"))
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			thread, err := resolveThread(cmd.Context(), ctx.Store, args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}

			updates := db.ThreadUpdates{Name: types.OptionalString{Set: true, Value: &newName}}
			if cmd.Flags().Changed("description") {
				description, _ := cmd.Flags().GetString("description")
				updates.Description = types.OptionalString{Set: true, Value: optionalString(description)}
			}
			updated, err := ctx.Store.UpdateThread(cmd.Context(), thread.GUID, updates)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), updated)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s: %s -> %s\n", thread.GUID, thread.Name, updated.Name)
			return nil
		},
	}

	cmd.Flags().String("description", "", "also replace the description (empty clears it)")

	return cmd
}

// NewDeleteCmd creates the delete command.
func NewDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <thread>",
		Short: "Delete a thread (cached messages are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			thread, err := resolveThread(cmd.Context(), ctx.Store, args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := ctx.Store.DeleteThread(cmd.Context(), thread.GUID); err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"guid": thread.GUID, "status": "deleted"})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted thread %s (%s)\n", thread.GUID, thread.Name)
			return nil
		},
	}
	return cmd
}

// NewPruneCmd creates the prune command.
func NewPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop expired cached messages that no thread uses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			removed, err := ctx.Store.PurgeExpiredMessages(cmd.Context())
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"removed": removed})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s\n", pluralize(int(removed), "cached message"))
			return nil
		},
	}
	return cmd
}
