package command

import (
	"fmt"

	"github.com/adamavenir/cwthread/internal/chatwork"
	"github.com/adamavenir/cwthread/internal/types"
	"github.com/spf13/cobra"
)

// NewAddMessageCmd creates the add-message command.
func NewAddMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-message <thread> <message-id-or-url>",
		Short: "Add a message to a thread, or change its relationship type",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, _ := cmd.Flags().GetString("room-id")
			relValue, _ := cmd.Flags().GetString("type")

			rel, err := types.ParseRelationshipType(relValue)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			ref, err := chatwork.ParseMessageRef(args[1], roomID)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			assembler, err := ctx.Assembler()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			msg, err := assembler.AddMessageToThread(cmd.Context(), args[0], ref, rel)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), types.ThreadMessage{Message: msg, RelationshipType: rel})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added message %s to %s as %s\n", msg.ID, args[0], rel)
			return nil
		},
	}

	cmd.Flags().String("room-id", "", "room id (default: the thread's room)")
	cmd.Flags().String("type", string(types.RelationshipManual), "relationship type: reply, quote, or manual")

	return cmd
}

// NewDelMessageCmd creates the del-message command.
func NewDelMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "del-message <thread> <message-id>",
		Aliases: []string{"remove-message"},
		Short:   "Remove a message from a thread",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := chatwork.ParseMessageRef(args[1], "")
			if err != nil {
				return writeCommandError(cmd, err)
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

			// Removal only touches the local store; no API token is needed.
			assembler := newLocalAssembler(ctx)
			if err := assembler.RemoveMessageFromThread(cmd.Context(), thread.GUID, ref.MessageID); err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"thread_guid": thread.GUID,
					"message_id":  ref.MessageID,
					"status":      "removed",
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed message %s from %s\n", ref.MessageID, thread.GUID)
			return nil
		},
	}
	return cmd
}

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <thread>",
		Short: "Fetch the room again and add newly related messages to a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, _ := cmd.Flags().GetString("room-id")

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			assembler, err := ctx.Assembler()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			added, err := assembler.RefreshThread(cmd.Context(), args[0], roomID)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				if added == nil {
					added = []types.Message{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]any{"added": added})
			}
			out := cmd.OutOrStdout()
			if len(added) == 0 {
				fmt.Fprintf(out, "No new messages for %s\n", args[0])
				return nil
			}
			fmt.Fprintf(out, "Added %s to %s:\n", pluralize(len(added), "message"), args[0])
			for _, msg := range added {
				fmt.Fprintf(out, "  %s  %s: %s\n", msg.ID, senderLabel(msg), truncate(formatBody(msg.Content), 60))
			}
			return nil
		},
	}

	cmd.Flags().String("room-id", "", "room id (default: the thread's room)")

	return cmd
}
