package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX represents shared methods across sql.DB and sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Migration is one ordered schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationState reports whether a migration has been applied.
type MigrationState struct {
	Version   int    `json:"version"`
	Name      string `json:"name"`
	AppliedAt *int64 `json:"applied_at,omitempty"`
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS cwthread_migrations (
  version INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  applied_at INTEGER NOT NULL
);
`

// Migrations lists every schema change in apply order.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQL: `
-- Messages cached from the chat service
CREATE TABLE IF NOT EXISTS cw_messages (
  id TEXT PRIMARY KEY,                 -- message id assigned by the service
  room_id TEXT NOT NULL,
  sender_id TEXT NOT NULL DEFAULT '',
  sender_name TEXT NOT NULL DEFAULT '',
  body TEXT NOT NULL,
  send_time INTEGER NOT NULL,          -- unix timestamp
  update_time INTEGER NOT NULL DEFAULT 0,
  cached_at INTEGER NOT NULL,
  cache_expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cw_messages_room ON cw_messages(room_id);
CREATE INDEX IF NOT EXISTS idx_cw_messages_send_time ON cw_messages(send_time);

-- Threads
CREATE TABLE IF NOT EXISTS cw_threads (
  guid TEXT PRIMARY KEY,               -- e.g., "thrd-a1b2c3d4"
  name TEXT NOT NULL,
  description TEXT,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);

-- Thread message membership
CREATE TABLE IF NOT EXISTS cw_thread_messages (
  thread_guid TEXT NOT NULL,
  message_id TEXT NOT NULL,
  relationship_type TEXT NOT NULL DEFAULT 'manual'
    CHECK (relationship_type IN ('root', 'reply', 'quote', 'manual')),
  added_at INTEGER NOT NULL,
  PRIMARY KEY (thread_guid, message_id),
  FOREIGN KEY (thread_guid) REFERENCES cw_threads(guid) ON DELETE CASCADE,
  FOREIGN KEY (message_id) REFERENCES cw_messages(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cw_thread_messages_message ON cw_thread_messages(message_id);
`,
	},
	{
		Version: 2,
		Name:    "thread_listing_and_single_root",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_cw_threads_updated ON cw_threads(updated_at);
CREATE INDEX IF NOT EXISTS idx_cw_threads_name ON cw_threads(name);
CREATE INDEX IF NOT EXISTS idx_cw_messages_cache_expires ON cw_messages(cache_expires_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cw_thread_messages_root
  ON cw_thread_messages(thread_guid) WHERE relationship_type = 'root';
`,
	},
}

// InitSchema applies every pending migration in one transaction.
func InitSchema(ctx context.Context, conn *sql.DB) error {
	_, err := ApplyMigrations(ctx, conn)
	return err
}

// ApplyMigrations applies pending migrations and returns the ones it applied.
func ApplyMigrations(ctx context.Context, conn *sql.DB) ([]Migration, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	applied, err := applyMigrationsWith(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return applied, nil
}

func applyMigrationsWith(ctx context.Context, q DBTX) ([]Migration, error) {
	if _, err := q.ExecContext(ctx, migrationsTableSQL); err != nil {
		return nil, err
	}
	done, err := appliedVersions(ctx, q)
	if err != nil {
		return nil, err
	}

	var applied []Migration
	for _, migration := range Migrations {
		if _, ok := done[migration.Version]; ok {
			continue
		}
		if _, err := q.ExecContext(ctx, migration.SQL); err != nil {
			return nil, fmt.Errorf("migration %03d_%s: %w", migration.Version, migration.Name, err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO cwthread_migrations (version, name, applied_at) VALUES (?, ?, ?)
		`, migration.Version, migration.Name, time.Now().Unix()); err != nil {
			return nil, err
		}
		applied = append(applied, migration)
	}
	return applied, nil
}

// MigrationStatus reports applied and pending migrations.
func MigrationStatus(ctx context.Context, conn *sql.DB) ([]MigrationState, error) {
	exists, err := tableExists(ctx, conn, "cwthread_migrations")
	if err != nil {
		return nil, err
	}
	done := map[int]int64{}
	if exists {
		done, err = appliedVersions(ctx, conn)
		if err != nil {
			return nil, err
		}
	}

	states := make([]MigrationState, 0, len(Migrations))
	for _, migration := range Migrations {
		state := MigrationState{Version: migration.Version, Name: migration.Name}
		if at, ok := done[migration.Version]; ok {
			appliedAt := at
			state.AppliedAt = &appliedAt
		}
		states = append(states, state)
	}
	return states, nil
}

// SchemaExists reports whether the thread schema is present.
func SchemaExists(ctx context.Context, conn *sql.DB) (bool, error) {
	return tableExists(ctx, conn, "cw_threads")
}

func appliedVersions(ctx context.Context, q DBTX) (map[int]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, applied_at FROM cwthread_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := map[int]int64{}
	for rows.Next() {
		var version int
		var appliedAt int64
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		done[version] = appliedAt
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return done, nil
}

func tableExists(ctx context.Context, q DBTX, table string) (bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name=?
	`, table)
	var name string
	err := row.Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return name != "", nil
}
