package command

import (
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/cwthread/internal/core"
	"github.com/adamavenir/cwthread/internal/types"
	"github.com/dustin/go-humanize"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
)

// NewThreadsCmd creates the threads command.
func NewThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threads",
		Aliases: []string{"list", "ls"},
		Short:   "List threads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			search, _ := cmd.Flags().GetString("search")
			match, _ := cmd.Flags().GetString("match")
			sortBy, _ := cmd.Flags().GetString("sort")
			limit, _ := cmd.Flags().GetInt("limit")

			var matcher glob.Glob
			if match != "" {
				compiled, err := glob.Compile(match)
				if err != nil {
					return writeCommandError(cmd, fmt.Errorf("invalid --match pattern: %w", err))
				}
				matcher = compiled
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			options := types.ThreadQueryOptions{Search: search, Sort: types.ThreadSort(sortBy)}
			// The glob filter runs after the query, so the limit is applied here.
			if matcher == nil {
				options.Limit = limit
			}
			summaries, err := ctx.Store.ListThreads(cmd.Context(), options)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			summaries = filterThreads(summaries, matcher, limit)

			if ctx.JSONMode {
				if summaries == nil {
					summaries = []types.ThreadSummary{}
				}
				return writeJSON(cmd.OutOrStdout(), summaries)
			}

			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No threads found")
				return nil
			}

			prefixLength := core.GetDisplayPrefixLength(len(summaries))
			fmt.Fprintf(out, "Threads (%d):\n", len(summaries))
			for _, summary := range summaries {
				updated := humanize.Time(time.Unix(summary.UpdatedAt, 0))
				fmt.Fprintf(out, "  %s  %s  (%s, updated %s)\n",
					core.GetGUIDPrefix(summary.GUID, prefixLength),
					summary.Name,
					pluralize(summary.MessageCount, "message"),
					updated,
				)
				if summary.Description != nil && strings.TrimSpace(*summary.Description) != "" {
					fmt.Fprintf(out, "        %s\n", truncate(*summary.Description, 72))
				}
			}
			return nil
		},
	}

	cmd.Flags().String("search", "", "filter by text in name or description")
	cmd.Flags().String("match", "", "filter names with a glob pattern (e.g. 'release*')")
	cmd.Flags().String("sort", string(types.ThreadSortUpdated), "sort by updated, created, or name")
	cmd.Flags().Int("limit", 0, "maximum number of threads to show")

	return cmd
}

func filterThreads(summaries []types.ThreadSummary, matcher glob.Glob, limit int) []types.ThreadSummary {
	if matcher == nil {
		return summaries
	}
	filtered := make([]types.ThreadSummary, 0, len(summaries))
	for _, summary := range summaries {
		if !matcher.Match(summary.Name) {
			continue
		}
		filtered = append(filtered, summary)
		if limit > 0 && len(filtered) == limit {
			break
		}
	}
	return filtered
}

func pluralize(count int, noun string) string {
	if count == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", count, noun)
}
