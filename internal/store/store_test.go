package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/famcall/internal/call"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed() {
		t.Error("second Migrate() should report no change")
	}
	if result.From != 1 || result.Version != 1 {
		t.Errorf("migrate = %d -> %d, want 1 -> 1", result.From, result.Version)
	}
}

func TestMigrateFreshHistory(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "fresh.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed() || result.From != 0 || result.Version != 1 {
		t.Errorf("migrate = %d -> %d, want 0 -> 1", result.From, result.Version)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}

	_, err := db.Migrate()
	if !errors.Is(err, ErrDirtySchema) {
		t.Fatalf("Migrate() error = %v, want ErrDirtySchema", err)
	}
}

func TestMessageTypeConstraint(t *testing.T) {
	db := testDB(t)
	_, err := db.Exec(`INSERT INTO messages (chat_id, msg_id, sender_id, receiver_id, type, timestamp) VALUES ('c', 'm', 'a', 'b', 'sticker', 1)`)
	if err == nil {
		t.Error("unknown message type should be rejected")
	}
}

func TestWriteCallRecord(t *testing.T) {
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name         string
		rec          call.Record
		wantType     MessageType
		wantContent  string
		wantDuration int
	}{
		{"missed video", call.Record{CallerID: "u1", ReceiverID: "u2", Kind: call.Video, Missed: true, At: at}, TypeMissedCall, "not answered", 0},
		{"missed audio", call.Record{CallerID: "u1", ReceiverID: "u2", Kind: call.Audio, Missed: true, At: at}, TypeMissedCall, "not answered", 0},
		{"video receipt", call.Record{CallerID: "u1", ReceiverID: "u2", Kind: call.Video, Duration: 95 * time.Second, At: at}, TypeVideoCall, "video call", 95},
		{"audio receipt", call.Record{CallerID: "u1", ReceiverID: "u2", Kind: call.Audio, Duration: 3 * time.Second, At: at}, TypeAudioCall, "audio call", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testDB(t)
			if err := db.WriteCallRecord(ctx, tt.rec); err != nil {
				t.Fatal(err)
			}
			msgs, err := db.ListMessages(ctx, call.ChatID("u1", "u2"), 0, 10)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 1 {
				t.Fatalf("got %d messages, want 1", len(msgs))
			}
			m := msgs[0]
			if m.Type != tt.wantType || m.Content != tt.wantContent || m.Duration != tt.wantDuration {
				t.Errorf("message = %+v, want %s %q %ds", m, tt.wantType, tt.wantContent, tt.wantDuration)
			}
			if m.SenderID != "u1" || m.ReceiverID != "u2" {
				t.Errorf("sender/receiver = %s/%s, want u1/u2", m.SenderID, m.ReceiverID)
			}
			if m.Timestamp != at.UnixMilli() {
				t.Errorf("timestamp = %d, want %d", m.Timestamp, at.UnixMilli())
			}
		})
	}
}

func TestInsertMessageIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	msg := &Message{ChatID: "u2_u1", MsgID: "m1", SenderID: "u1", ReceiverID: "u2", Type: TypeText, Content: "hi", Timestamp: 1000}
	if err := db.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	n, err := db.MessageCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestListMessagesKeyset(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)
	for i := int64(1); i <= 5; i++ {
		if err := db.InsertMessage(ctx, &Message{ChatID: "c", SenderID: "a", ReceiverID: "b", Type: TypeText, Timestamp: i * 1000}); err != nil {
			t.Fatal(err)
		}
	}

	page, err := db.ListMessages(ctx, "c", 4000, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Timestamp != 3000 || page[1].Timestamp != 2000 {
		t.Errorf("page = %+v, want timestamps 3000, 2000", page)
	}
}

func TestCallHistory(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	recs := []call.Record{
		{CallerID: "u1", ReceiverID: "u2", Kind: call.Video, Missed: true, At: time.UnixMilli(1000)},
		{CallerID: "u2", ReceiverID: "u1", Kind: call.Audio, Duration: time.Minute, At: time.UnixMilli(2000)},
		{CallerID: "u3", ReceiverID: "u4", Kind: call.Audio, Missed: true, At: time.UnixMilli(3000)},
	}
	for _, r := range recs {
		if err := db.WriteCallRecord(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.InsertMessage(ctx, &Message{ChatID: "u2_u1", SenderID: "u1", ReceiverID: "u2", Type: TypeText, Timestamp: 4000}); err != nil {
		t.Fatal(err)
	}

	hist, err := db.CallHistory(ctx, "u1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 {
		t.Fatalf("got %d calls, want 2", len(hist))
	}
	if hist[0].Type != TypeAudioCall || hist[1].Type != TypeMissedCall {
		t.Errorf("history = %+v, want newest first", hist)
	}
	for _, m := range hist {
		if !m.Type.IsCall() {
			t.Errorf("non-call message %q in history", m.Type)
		}
	}
}

func TestProfileOf(t *testing.T) {
	ctx := context.Background()
	db := testDB(t)

	p, err := db.ProfileOf(ctx, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != "ghost" || p.Name != "Someone" {
		t.Errorf("unknown profile = %+v, want placeholder", p)
	}

	if err := db.UpsertProfile(ctx, call.Profile{ID: "u1", Name: "Ana", Avatar: "https://example.com/a.png"}); err != nil {
		t.Fatal(err)
	}
	// Empty fields keep stored values.
	if err := db.UpsertProfile(ctx, call.Profile{ID: "u1", Name: "Ana Maria"}); err != nil {
		t.Fatal(err)
	}
	p, err = db.ProfileOf(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Ana Maria" || p.Avatar != "https://example.com/a.png" {
		t.Errorf("profile = %+v", p)
	}

	all, err := db.Profiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d profiles, want 1", len(all))
	}
}
