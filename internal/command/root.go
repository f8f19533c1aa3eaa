package command

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

const AppName = "cwthread"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "cwthread - assemble Chatwork conversations into threads",
		Long:          "cwthread follows reply and quote markup between Chatwork messages and saves related messages as local threads.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.PersistentFlags().String("config", "", "path to a cwthread.toml config file")
	cmd.PersistentFlags().String("db", "", "path to the SQLite database (overrides db.path)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	cmd.AddCommand(
		NewCreateCmd(),
		NewThreadsCmd(),
		NewShowCmd(),
		NewAddMessageCmd(),
		NewDelMessageCmd(),
		NewRefreshCmd(),
		NewRenameCmd(),
		NewDeleteCmd(),
		NewMigrateCmd(),
		NewPruneCmd(),
	)

	return cmd
}

// Execute runs the root command. Cancelling ctx aborts in-flight API calls.
func Execute(ctx context.Context) error {
	return NewRootCmd(Version).ExecuteContext(ctx)
}
