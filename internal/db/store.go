package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/adamavenir/cwthread/internal/store"
	"github.com/adamavenir/cwthread/internal/types"
)

// DefaultCacheTTL is how long a cached message stays fresh.
const DefaultCacheTTL = 24 * time.Hour

// Store is the SQLite implementation of store.Store.
type Store struct {
	conn     *sql.DB
	q        DBTX
	inTx     bool
	cacheTTL time.Duration
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithCacheTTL sets the cache lifetime stamped on saved messages.
func WithCacheTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore wraps an open database. The schema must already be initialized.
func NewStore(conn *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		conn:     conn,
		q:        conn,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.inTx {
		return fmt.Errorf("close called inside transaction")
	}
	return s.conn.Close()
}

// RunAtomically runs fn in a transaction. Nested calls join the outer one.
func (s *Store) RunAtomically(ctx context.Context, fn func(tx store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txStore := &Store{conn: s.conn, q: tx, inTx: true, cacheTTL: s.cacheTTL, now: s.now}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) SaveMessage(ctx context.Context, msg types.Message) error {
	now := s.now()
	return SaveMessage(ctx, s.q, msg, now.Unix(), now.Add(s.cacheTTL).Unix())
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*types.Message, error) {
	return GetMessage(ctx, s.q, messageID)
}

// GetMessagesByRoom returns cached messages of a room.
func (s *Store) GetMessagesByRoom(ctx context.Context, roomID string) ([]types.Message, error) {
	return GetMessagesByRoom(ctx, s.q, roomID)
}

// PurgeExpiredMessages drops stale cached messages no thread uses.
func (s *Store) PurgeExpiredMessages(ctx context.Context) (int64, error) {
	return DeleteExpiredMessages(ctx, s.q, s.now().Unix())
}

func (s *Store) CreateThread(ctx context.Context, name string, description *string) (types.Thread, error) {
	now := s.now().Unix()
	return CreateThread(ctx, s.q, types.Thread{
		Name:        name,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (s *Store) GetThread(ctx context.Context, guid string) (*types.Thread, error) {
	return GetThread(ctx, s.q, guid)
}

func (s *Store) ResolveThread(ctx context.Context, ref string) (*types.Thread, error) {
	return ResolveThread(ctx, s.q, ref)
}

// ListThreads returns thread summaries.
func (s *Store) ListThreads(ctx context.Context, options types.ThreadQueryOptions) ([]types.ThreadSummary, error) {
	return ListThreads(ctx, s.q, options)
}

// UpdateThread applies partial updates to a thread.
func (s *Store) UpdateThread(ctx context.Context, guid string, updates ThreadUpdates) (*types.Thread, error) {
	return UpdateThread(ctx, s.q, guid, updates, s.now().Unix())
}

// DeleteThread removes a thread and its memberships.
func (s *Store) DeleteThread(ctx context.Context, guid string) error {
	return DeleteThread(ctx, s.q, guid)
}

func (s *Store) AddMembership(ctx context.Context, threadGUID, messageID string, rel types.RelationshipType) error {
	return AddMembership(ctx, s.q, types.ThreadMembership{
		ThreadGUID:       threadGUID,
		MessageID:        messageID,
		RelationshipType: rel,
		AddedAt:          s.now().Unix(),
	})
}

func (s *Store) RemoveMembership(ctx context.Context, threadGUID, messageID string) error {
	return RemoveMembership(ctx, s.q, threadGUID, messageID, s.now().Unix())
}

func (s *Store) GetMembership(ctx context.Context, threadGUID, messageID string) (*types.ThreadMembership, error) {
	return GetMembership(ctx, s.q, threadGUID, messageID)
}

// GetMemberships returns all membership rows of a thread.
func (s *Store) GetMemberships(ctx context.Context, threadGUID string) ([]types.ThreadMembership, error) {
	return GetMemberships(ctx, s.q, threadGUID)
}

func (s *Store) GetThreadMessages(ctx context.Context, threadGUID string) ([]types.ThreadMessage, error) {
	return GetThreadMessages(ctx, s.q, threadGUID)
}

func (s *Store) CheckMessageInThreads(ctx context.Context, messageID string) (types.ThreadCheck, error) {
	return CheckMessageInThreads(ctx, s.q, messageID)
}
