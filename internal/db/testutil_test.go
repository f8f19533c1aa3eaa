package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/adamavenir/cwthread/internal/types"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDatabase(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func requireSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	if err := InitSchema(context.Background(), db); err != nil {
		t.Fatalf("init schema: %v", err)
	}
}

func openTestStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()
	db := openTestDB(t)
	requireSchema(t, db)
	return NewStore(db, opts...)
}

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func saveTestMessage(t *testing.T, s *Store, id, body string, sendTime int64) types.Message {
	t.Helper()
	msg := types.Message{
		ID:         id,
		RoomID:     "100",
		SenderID:   "7",
		SenderName: "alice",
		Content:    body,
		SendTime:   sendTime,
	}
	if err := s.SaveMessage(context.Background(), msg); err != nil {
		t.Fatalf("save message %s: %v", id, err)
	}
	return msg
}

func strPtr(value string) *string {
	return &value
}
