package command

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adamavenir/cwthread/internal/analyzer"
	"github.com/adamavenir/cwthread/internal/chatwork"
	"github.com/adamavenir/cwthread/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

const (
	formatText     = "text"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

type threadView struct {
	Thread   types.Thread          `json:"thread"`
	Messages []types.ThreadMessage `json:"messages"`
}

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <thread>",
		Short: "Show a thread and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			outputPath, _ := cmd.Flags().GetString("output")
			metadata, _ := cmd.Flags().GetBool("metadata")

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if ctx.JSONMode {
				format = formatJSON
			}
			format = strings.ToLower(strings.TrimSpace(format))
			if format != formatText && format != formatJSON && format != formatMarkdown {
				return writeCommandError(cmd, fmt.Errorf("invalid format: %s (valid: text, json, markdown)", format))
			}

			thread, err := resolveThread(cmd.Context(), ctx.Store, args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			messages, err := ctx.Store.GetThreadMessages(cmd.Context(), thread.GUID)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if messages == nil {
				messages = []types.ThreadMessage{}
			}
			view := threadView{Thread: *thread, Messages: messages}

			var buf bytes.Buffer
			target := io.Writer(cmd.OutOrStdout())
			if outputPath != "" {
				target = &buf
			}

			switch format {
			case formatJSON:
				err = writeJSON(target, view)
			case formatMarkdown:
				err = renderMarkdown(target, view, metadata)
			default:
				err = renderText(target, view, metadata)
			}
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if outputPath != "" {
				if dir := filepath.Dir(outputPath); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return writeCommandError(cmd, err)
					}
				}
				if err := os.WriteFile(outputPath, buf.Bytes(), 0o644); err != nil {
					return writeCommandError(cmd, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d messages) to %s\n", thread.GUID, len(messages), outputPath)
			}
			return nil
		},
	}

	cmd.Flags().String("format", formatText, "output format: text, json, or markdown")
	cmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")
	cmd.Flags().Bool("metadata", false, "include message ids, room ids, and links")

	return cmd
}

func renderText(out io.Writer, view threadView, metadata bool) error {
	renderer := lipgloss.NewRenderer(out)
	titleStyle := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
	metaStyle := renderer.NewStyle().Foreground(lipgloss.Color("241"))
	senderStyle := renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("157"))
	bodyStyle := renderer.NewStyle().PaddingLeft(2)
	relStyles := map[types.RelationshipType]lipgloss.Style{
		types.RelationshipRoot:   renderer.NewStyle().Foreground(lipgloss.Color("220")),
		types.RelationshipReply:  renderer.NewStyle().Foreground(lipgloss.Color("78")),
		types.RelationshipQuote:  renderer.NewStyle().Foreground(lipgloss.Color("141")),
		types.RelationshipManual: renderer.NewStyle().Foreground(lipgloss.Color("243")),
	}

	thread := view.Thread
	fmt.Fprintln(out, titleStyle.Render(thread.Name))
	fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("%s | %s | created %s | updated %s",
		thread.GUID,
		pluralize(len(view.Messages), "message"),
		formatTimestamp(thread.CreatedAt),
		formatTimestamp(thread.UpdatedAt),
	)))
	if thread.Description != nil && *thread.Description != "" {
		fmt.Fprintln(out, *thread.Description)
	}

	for _, msg := range view.Messages {
		fmt.Fprintln(out)
		style, ok := relStyles[msg.RelationshipType]
		if !ok {
			style = metaStyle
		}
		fmt.Fprintf(out, "%s %s  %s\n",
			style.Render("["+string(msg.RelationshipType)+"]"),
			senderStyle.Render(senderLabel(msg.Message)),
			metaStyle.Render(formatTimestamp(msg.SendTime)),
		)
		if metadata {
			fmt.Fprintln(out, metaStyle.Render(fmt.Sprintf("  id %s | room %s | %s",
				msg.ID, msg.RoomID, chatwork.MessageURL(msg.RoomID, msg.ID))))
		}
		fmt.Fprintln(out, bodyStyle.Render(formatBody(msg.Content)))
	}
	return nil
}

func renderMarkdown(out io.Writer, view threadView, metadata bool) error {
	thread := view.Thread
	fmt.Fprintf(out, "# %s\n\n", thread.Name)
	if thread.Description != nil && *thread.Description != "" {
		fmt.Fprintf(out, "> %s\n\n", *thread.Description)
	}
	fmt.Fprintf(out, "- **Thread:** `%s`\n", thread.GUID)
	fmt.Fprintf(out, "- **Messages:** %d\n", len(view.Messages))
	fmt.Fprintf(out, "- **Created:** %s\n", formatTimestamp(thread.CreatedAt))
	fmt.Fprintf(out, "- **Updated:** %s\n", formatTimestamp(thread.UpdatedAt))

	for i, msg := range view.Messages {
		fmt.Fprintf(out, "\n## %d. %s (%s)\n\n", i+1, senderLabel(msg.Message), msg.RelationshipType)
		fmt.Fprintf(out, "*%s*", formatTimestamp(msg.SendTime))
		if metadata {
			fmt.Fprintf(out, " · [%s](%s) · room %s", msg.ID, chatwork.MessageURL(msg.RoomID, msg.ID), msg.RoomID)
		}
		fmt.Fprint(out, "\n\n")
		for _, line := range strings.Split(formatBody(msg.Content), "\n") {
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

// formatBody replaces reply and quote tags with readable markers.
func formatBody(body string) string {
	text := analyzer.ReplyTag.ReplaceAllString(body, "↩ $1 ")
	text = analyzer.QuoteMetaTag.ReplaceAllStringFunc(text, func(tag string) string {
		if match := analyzer.QuoteMetaTag.FindStringSubmatch(tag); match != nil && match[1] != "" {
			return "❝ " + match[1] + ": "
		}
		return "❝ "
	})
	text = strings.ReplaceAll(text, "[qt]", "")
	text = strings.ReplaceAll(text, "[/qt]", "")
	return strings.TrimSpace(text)
}

func senderLabel(msg types.Message) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	if msg.SenderID != "" {
		return "account " + msg.SenderID
	}
	return "unknown"
}

func formatTimestamp(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Local().Format("2006-01-02 15:04")
}
