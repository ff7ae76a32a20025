package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/famcall/internal/call"
)

// InsertMessage stores m, ignoring a duplicate (chat_id, msg_id).
func (db *DB) InsertMessage(ctx context.Context, m *Message) error {
	if m.MsgID == "" {
		m.MsgID = uuid.NewString()
	}
	if m.Timestamp == 0 {
		m.Timestamp = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (chat_id, msg_id, sender_id, receiver_id, type, content, duration, is_read, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, msg_id) DO NOTHING`,
		m.ChatID, m.MsgID, m.SenderID, m.ReceiverID, m.Type, m.Content, m.Duration, m.IsRead, m.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// WriteCallRecord stores a call as a chat message in the thread of the two
// participants. The caller is always the sender.
func (db *DB) WriteCallRecord(ctx context.Context, r call.Record) error {
	m := &Message{
		ChatID:     call.ChatID(r.CallerID, r.ReceiverID),
		SenderID:   r.CallerID,
		ReceiverID: r.ReceiverID,
		Timestamp:  r.At.UnixMilli(),
	}
	switch {
	case r.Missed:
		m.Type = TypeMissedCall
		m.Content = "not answered"
	case r.Kind == call.Video:
		m.Type = TypeVideoCall
		m.Content = "video call"
		m.Duration = int(r.Duration / time.Second)
	default:
		m.Type = TypeAudioCall
		m.Content = "audio call"
		m.Duration = int(r.Duration / time.Second)
	}
	return db.InsertMessage(ctx, m)
}

const messageColumns = `id, chat_id, msg_id, sender_id, receiver_id, type, content, duration, is_read, timestamp`

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.MsgID, &m.SenderID, &m.ReceiverID, &m.Type, &m.Content, &m.Duration, &m.IsRead, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(ctx context.Context, chatID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, chatID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// CallHistory returns call receipts and missed calls involving userID,
// newest first.
func (db *DB) CallHistory(ctx context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE type IN ('video_call', 'audio_call', 'missed_call')
		  AND (sender_id = ? OR receiver_id = ?)
		ORDER BY timestamp DESC
		LIMIT ?`, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
