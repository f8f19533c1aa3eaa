package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/adamavenir/cwthread/internal/types"
)

// ThreadUpdates represents partial thread updates.
type ThreadUpdates struct {
	Name        types.OptionalString
	Description types.OptionalString
}

const threadColumns = `guid, name, description, created_at, updated_at`

// CreateThread inserts a new thread.
func CreateThread(ctx context.Context, q DBTX, thread types.Thread) (types.Thread, error) {
	guid := thread.GUID
	if guid == "" {
		var err error
		guid, err = generateUniqueGUIDForTable(ctx, q, "cw_threads", "thrd")
		if err != nil {
			return types.Thread{}, err
		}
	}

	createdAt := thread.CreatedAt
	if createdAt == 0 {
		createdAt = time.Now().Unix()
	}
	updatedAt := thread.UpdatedAt
	if updatedAt == 0 {
		updatedAt = createdAt
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO cw_threads (guid, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, guid, thread.Name, nullableValue(thread.Description), createdAt, updatedAt)
	if err != nil {
		return types.Thread{}, err
	}

	thread.GUID = guid
	thread.CreatedAt = createdAt
	thread.UpdatedAt = updatedAt
	return thread, nil
}

// UpdateThread updates thread fields.
func UpdateThread(ctx context.Context, q DBTX, guid string, updates ThreadUpdates, now int64) (*types.Thread, error) {
	var fields []string
	var args []any

	if updates.Name.Set {
		if updates.Name.Value == nil || strings.TrimSpace(*updates.Name.Value) == "" {
			return nil, fmt.Errorf("thread name cannot be empty")
		}
		fields = append(fields, "name = ?")
		args = append(args, *updates.Name.Value)
	}
	if updates.Description.Set {
		fields = append(fields, "description = ?")
		args = append(args, nullableValue(updates.Description.Value))
	}

	if len(fields) == 0 {
		return GetThread(ctx, q, guid)
	}

	fields = append(fields, "updated_at = ?")
	args = append(args, now, guid)
	query := fmt.Sprintf("UPDATE cw_threads SET %s WHERE guid = ?", strings.Join(fields, ", "))
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, types.NewThreadNotFound(guid)
	}
	return GetThread(ctx, q, guid)
}

// DeleteThread removes a thread and its memberships. Cached messages are kept.
func DeleteThread(ctx context.Context, q DBTX, guid string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM cw_threads WHERE guid = ?`, guid)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.NewThreadNotFound(guid)
	}
	return nil
}

// GetThread returns a thread by GUID.
func GetThread(ctx context.Context, q DBTX, guid string) (*types.Thread, error) {
	row := q.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM cw_threads WHERE guid = ?`, guid)
	return scanOptionalThread(row)
}

// GetThreadByPrefix returns the first thread whose GUID starts with prefix.
// The "thrd-" part may be omitted.
func GetThreadByPrefix(ctx context.Context, q DBTX, prefix string) (*types.Thread, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil, nil
	}
	if !strings.HasPrefix(prefix, "thrd-") {
		prefix = "thrd-" + prefix
	}
	rows, err := q.QueryContext(ctx, `
		SELECT `+threadColumns+` FROM cw_threads
		WHERE guid LIKE ? ESCAPE '\'
		ORDER BY guid
		LIMIT 2
	`, escapeLike(prefix)+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []types.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(matches) != 1 {
		return nil, nil
	}
	return &matches[0], nil
}

// GetThreadByName returns the most recently updated thread with an exact name.
func GetThreadByName(ctx context.Context, q DBTX, name string) (*types.Thread, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+threadColumns+` FROM cw_threads
		WHERE name = ?
		ORDER BY updated_at DESC, guid
		LIMIT 1
	`, name)
	return scanOptionalThread(row)
}

// ResolveThread looks a thread up by GUID, then unique GUID prefix, then name.
func ResolveThread(ctx context.Context, q DBTX, ref string) (*types.Thread, error) {
	value := strings.TrimPrefix(strings.TrimSpace(ref), "#")
	if value == "" {
		return nil, nil
	}

	thread, err := GetThread(ctx, q, value)
	if err != nil || thread != nil {
		return thread, err
	}
	thread, err = GetThreadByPrefix(ctx, q, value)
	if err != nil || thread != nil {
		return thread, err
	}
	return GetThreadByName(ctx, q, value)
}

// ListThreads returns thread summaries filtered and ordered by options.
func ListThreads(ctx context.Context, q DBTX, options types.ThreadQueryOptions) ([]types.ThreadSummary, error) {
	query := `
		SELECT t.guid, t.name, t.description, t.created_at, t.updated_at,
		       COUNT(tm.message_id),
		       COALESCE(MAX(CASE WHEN tm.relationship_type = 'root' THEN tm.message_id END), '')
		FROM cw_threads t
		LEFT JOIN cw_thread_messages tm ON tm.thread_guid = t.guid
	`
	var args []any
	if search := strings.TrimSpace(options.Search); search != "" {
		query += ` WHERE t.name LIKE ? ESCAPE '\' OR COALESCE(t.description, '') LIKE ? ESCAPE '\'`
		pattern := "%" + escapeLike(search) + "%"
		args = append(args, pattern, pattern)
	}
	query += ` GROUP BY t.guid`

	switch options.Sort {
	case types.ThreadSortCreated:
		query += ` ORDER BY t.created_at DESC, t.guid`
	case types.ThreadSortName:
		query += ` ORDER BY t.name COLLATE NOCASE ASC, t.guid`
	case types.ThreadSortUpdated, "":
		query += ` ORDER BY t.updated_at DESC, t.guid`
	default:
		return nil, fmt.Errorf("invalid sort: %s (valid: updated, created, name)", options.Sort)
	}
	if options.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, options.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []types.ThreadSummary
	for rows.Next() {
		var summary types.ThreadSummary
		var description sql.NullString
		if err := rows.Scan(
			&summary.GUID, &summary.Name, &description, &summary.CreatedAt, &summary.UpdatedAt,
			&summary.MessageCount, &summary.RootMessageID,
		); err != nil {
			return nil, err
		}
		summary.Description = nullStringPtr(description)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// AddMembership adds or retypes a message in a thread and touches the thread.
// The message must already be cached.
func AddMembership(ctx context.Context, q DBTX, membership types.ThreadMembership) error {
	if !membership.RelationshipType.Valid() {
		return fmt.Errorf("invalid relationship type: %s", membership.RelationshipType)
	}
	thread, err := GetThread(ctx, q, membership.ThreadGUID)
	if err != nil {
		return err
	}
	if thread == nil {
		return types.NewThreadNotFound(membership.ThreadGUID)
	}
	msg, err := GetMessage(ctx, q, membership.MessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		return types.NewMessageNotFound(membership.MessageID)
	}

	addedAt := membership.AddedAt
	if addedAt == 0 {
		addedAt = time.Now().Unix()
	}
	if _, err := q.ExecContext(ctx, `
		INSERT INTO cw_thread_messages (thread_guid, message_id, relationship_type, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_guid, message_id) DO UPDATE SET
			relationship_type = excluded.relationship_type,
			added_at = excluded.added_at
	`, membership.ThreadGUID, membership.MessageID, string(membership.RelationshipType), addedAt); err != nil {
		return err
	}
	return touchThread(ctx, q, membership.ThreadGUID, addedAt)
}

// RemoveMembership removes a message from a thread.
func RemoveMembership(ctx context.Context, q DBTX, threadGUID, messageID string, now int64) error {
	result, err := q.ExecContext(ctx, `
		DELETE FROM cw_thread_messages WHERE thread_guid = ? AND message_id = ?
	`, threadGUID, messageID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return &types.NotFoundError{Kind: "membership", ID: threadGUID + "/" + messageID}
	}
	return touchThread(ctx, q, threadGUID, now)
}

// GetMembership returns a single membership row.
func GetMembership(ctx context.Context, q DBTX, threadGUID, messageID string) (*types.ThreadMembership, error) {
	row := q.QueryRowContext(ctx, `
		SELECT thread_guid, message_id, relationship_type, added_at
		FROM cw_thread_messages
		WHERE thread_guid = ? AND message_id = ?
	`, threadGUID, messageID)
	membership, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// GetMemberships returns all memberships of a thread in insertion order.
func GetMemberships(ctx context.Context, q DBTX, threadGUID string) ([]types.ThreadMembership, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT thread_guid, message_id, relationship_type, added_at
		FROM cw_thread_messages
		WHERE thread_guid = ?
		ORDER BY added_at ASC, message_id ASC
	`, threadGUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var memberships []types.ThreadMembership
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		memberships = append(memberships, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return memberships, nil
}

// GetThreadMessages returns the cached messages of a thread ordered by send time.
func GetThreadMessages(ctx context.Context, q DBTX, threadGUID string) ([]types.ThreadMessage, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.room_id, m.sender_id, m.sender_name, m.body, m.send_time, m.update_time,
		       tm.relationship_type, tm.added_at
		FROM cw_thread_messages tm
		JOIN cw_messages m ON m.id = tm.message_id
		WHERE tm.thread_guid = ?
		ORDER BY m.send_time ASC, m.id ASC
	`, threadGUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []types.ThreadMessage
	for rows.Next() {
		var item types.ThreadMessage
		var rel string
		if err := rows.Scan(
			&item.ID, &item.RoomID, &item.SenderID, &item.SenderName, &item.Content, &item.SendTime, &item.UpdateTime,
			&rel, &item.AddedAt,
		); err != nil {
			return nil, err
		}
		item.RelationshipType = types.RelationshipType(rel)
		messages = append(messages, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// CheckMessageInThreads reports which threads already contain a message.
func CheckMessageInThreads(ctx context.Context, q DBTX, messageID string) (types.ThreadCheck, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT thread_guid FROM cw_thread_messages
		WHERE message_id = ?
		ORDER BY thread_guid
	`, messageID)
	if err != nil {
		return types.ThreadCheck{}, err
	}
	defer rows.Close()

	check := types.ThreadCheck{ThreadGUIDs: []string{}}
	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return types.ThreadCheck{}, err
		}
		check.ThreadGUIDs = append(check.ThreadGUIDs, guid)
	}
	if err := rows.Err(); err != nil {
		return types.ThreadCheck{}, err
	}
	check.Exists = len(check.ThreadGUIDs) > 0
	return check, nil
}

func touchThread(ctx context.Context, q DBTX, guid string, at int64) error {
	_, err := q.ExecContext(ctx, `UPDATE cw_threads SET updated_at = MAX(updated_at, ?) WHERE guid = ?`, at, guid)
	return err
}

func scanOptionalThread(row *sql.Row) (*types.Thread, error) {
	thread, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func scanThread(scanner interface{ Scan(dest ...any) error }) (types.Thread, error) {
	var thread types.Thread
	var description sql.NullString
	if err := scanner.Scan(&thread.GUID, &thread.Name, &description, &thread.CreatedAt, &thread.UpdatedAt); err != nil {
		return types.Thread{}, err
	}
	thread.Description = nullStringPtr(description)
	return thread, nil
}

func scanMembership(scanner interface{ Scan(dest ...any) error }) (types.ThreadMembership, error) {
	var membership types.ThreadMembership
	var rel string
	if err := scanner.Scan(&membership.ThreadGUID, &membership.MessageID, &rel, &membership.AddedAt); err != nil {
		return types.ThreadMembership{}, err
	}
	membership.RelationshipType = types.RelationshipType(rel)
	return membership, nil
}
