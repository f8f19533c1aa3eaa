package db

import (
	"context"
	"database/sql"

	"github.com/adamavenir/cwthread/internal/types"
)

const messageColumns = `id, room_id, sender_id, sender_name, body, send_time, update_time`

// SaveMessage upserts a message by id. An existing row is overwritten; the last
// write wins.
func SaveMessage(ctx context.Context, q DBTX, msg types.Message, cachedAt, expiresAt int64) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cw_messages (
			id, room_id, sender_id, sender_name, body, send_time, update_time, cached_at, cache_expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			room_id = excluded.room_id,
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			body = excluded.body,
			send_time = excluded.send_time,
			update_time = excluded.update_time,
			cached_at = excluded.cached_at,
			cache_expires_at = excluded.cache_expires_at
	`, msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.Content, msg.SendTime, msg.UpdateTime, cachedAt, expiresAt)
	return err
}

// GetMessage returns a cached message by id.
func GetMessage(ctx context.Context, q DBTX, id string) (*types.Message, error) {
	row := q.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM cw_messages WHERE id = ?`, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessagesByRoom returns cached messages of a room ordered by send time.
func GetMessagesByRoom(ctx context.Context, q DBTX, roomID string) ([]types.Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM cw_messages
		WHERE room_id = ?
		ORDER BY send_time ASC, id ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// DeleteExpiredMessages removes cached messages past their expiry that no
// thread references.
func DeleteExpiredMessages(ctx context.Context, q DBTX, now int64) (int64, error) {
	result, err := q.ExecContext(ctx, `
		DELETE FROM cw_messages
		WHERE cache_expires_at < ?
		  AND id NOT IN (SELECT message_id FROM cw_thread_messages)
	`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (types.Message, error) {
	var msg types.Message
	err := scanner.Scan(&msg.ID, &msg.RoomID, &msg.SenderID, &msg.SenderName, &msg.Content, &msg.SendTime, &msg.UpdateTime)
	return msg, err
}
