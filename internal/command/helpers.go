package command

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/adamavenir/cwthread/internal/db"
	"github.com/adamavenir/cwthread/internal/types"
)

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// resolveThread resolves a thread by GUID, GUID prefix, or name.
func resolveThread(ctx context.Context, st *db.Store, ref string) (*types.Thread, error) {
	thread, err := st.ResolveThread(ctx, ref)
	if err != nil {
		return nil, err
	}
	if thread == nil {
		return nil, types.NewThreadNotFound(ref)
	}
	return thread, nil
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func truncate(value string, limit int) string {
	collapsed := strings.Join(strings.Fields(value), " ")
	runes := []rune(collapsed)
	if limit <= 0 || len(runes) <= limit {
		return collapsed
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
