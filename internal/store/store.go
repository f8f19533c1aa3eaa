package store

import (
	"context"

	"github.com/adamavenir/cwthread/internal/types"
)

// Store persists cached messages, threads and thread memberships.
// The SQLite implementation lives in internal/db.
type Store interface {
	// Messages
	SaveMessage(ctx context.Context, msg types.Message) error
	GetMessage(ctx context.Context, messageID string) (*types.Message, error)

	// Threads
	CreateThread(ctx context.Context, name string, description *string) (types.Thread, error)
	GetThread(ctx context.Context, guid string) (*types.Thread, error)
	ResolveThread(ctx context.Context, ref string) (*types.Thread, error)

	// Memberships
	AddMembership(ctx context.Context, threadGUID, messageID string, rel types.RelationshipType) error
	RemoveMembership(ctx context.Context, threadGUID, messageID string) error
	GetMembership(ctx context.Context, threadGUID, messageID string) (*types.ThreadMembership, error)
	GetThreadMessages(ctx context.Context, threadGUID string) ([]types.ThreadMessage, error)
	CheckMessageInThreads(ctx context.Context, messageID string) (types.ThreadCheck, error)

	// RunAtomically runs fn inside one transaction. fn receives a Store bound to
	// that transaction; any error returned by fn rolls everything back.
	RunAtomically(ctx context.Context, fn func(tx Store) error) error
}
