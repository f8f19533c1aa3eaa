package command

import (
	"fmt"

	"github.com/adamavenir/cwthread/internal/analyzer"
	"github.com/adamavenir/cwthread/internal/chatwork"
	"github.com/spf13/cobra"
)

// NewCreateCmd creates the create command.
func NewCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <message-id-or-url>",
		Short: "Create a thread from a root message and everything related to it",
		Example: `  cwthread create "https://www.chatwork.com/#!rid368838329-2015782344493105152"
  cwthread create 2015782344493105152 --room-id 368838329 --name "Release planning"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomID, _ := cmd.Flags().GetString("room-id")
			name, _ := cmd.Flags().GetString("name")
			description, _ := cmd.Flags().GetString("description")
			forceDouble, _ := cmd.Flags().GetBool("force-double")

			ref, err := chatwork.ParseMessageRef(args[0], roomID)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if ref.RoomID == "" {
				return writeCommandError(cmd, fmt.Errorf("room id is required: pass --room-id or a message URL"))
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

			thread, err := assembler.CreateThread(cmd.Context(), ref, analyzer.CreateOptions{
				Name:        name,
				Description: optionalString(description),
				ForceDouble: forceDouble,
			})
			if err != nil {
				return writeCommandError(cmd, err)
			}

			messages, err := ctx.Store.GetThreadMessages(cmd.Context(), thread.GUID)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"thread":        thread,
					"message_count": len(messages),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created thread %s (%s)\n", thread.GUID, thread.Name)
			fmt.Fprintf(out, "  %d message(s) from room %s\n", len(messages), ref.RoomID)
			return nil
		},
	}

	cmd.Flags().String("room-id", "", "room id when passing a bare message id")
	cmd.Flags().String("name", "", "thread name (default: derived from the root message)")
	cmd.Flags().String("description", "", "thread description")
	cmd.Flags().Bool("force-double", false, "allow a message that already belongs to a thread to root another")

	return cmd
}
