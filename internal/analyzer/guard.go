package analyzer

import (
	"context"

	"github.com/adamavenir/cwthread/internal/store"
	"github.com/adamavenir/cwthread/internal/types"
)

// Guard enforces at-most-one-thread-per-message for thread roots.
type Guard struct {
	store store.Store
}

// NewGuard creates a duplicate guard backed by st.
func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

// Check reports the threads that already own messageID.
func (g *Guard) Check(ctx context.Context, messageID string) (types.ThreadCheck, error) {
	return g.store.CheckMessageInThreads(ctx, messageID)
}

// Ensure fails with MessageAlreadyExistsError when messageID already belongs to a thread.
func (g *Guard) Ensure(ctx context.Context, messageID string) error {
	check, err := g.Check(ctx, messageID)
	if err != nil {
		return &types.AnalysisError{MessageID: messageID, Op: "check duplicates", Err: err}
	}
	if check.Exists {
		return &types.MessageAlreadyExistsError{MessageID: messageID, ThreadIDs: check.ThreadGUIDs}
	}
	return nil
}
