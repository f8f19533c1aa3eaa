package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/adamavenir/cwthread/internal/core"
	"github.com/adamavenir/cwthread/internal/types"
	"github.com/spf13/cobra"
)

// reportedError marks an error already printed to the command's stderr.
type reportedError struct {
	err error
}

func (e *reportedError) Error() string { return e.err.Error() }

func (e *reportedError) Unwrap() error { return e.err }

// IsReported reports whether err was already printed by a command.
func IsReported(err error) bool {
	var reported *reportedError
	return errors.As(err, &reported)
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())

	var exists *types.MessageAlreadyExistsError
	switch {
	case errors.As(err, &exists):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: pass --force-double to create another thread from the same message")
	case errors.Is(err, core.ErrMissingToken):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: add CHATWORK_API_TOKEN to your environment or .env file")
	case isSchemaError(err):
		fmt.Fprintln(cmd.ErrOrStderr(), "Hint: This looks like a schema mismatch. Try: cwthread migrate")
	}

	return &reportedError{err: err}
}

// isSchemaError checks if an error is a SQLite schema mismatch.
func isSchemaError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "has no column")
}
