package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/signaling"
)

type docEvent struct {
	sess   call.Session
	exists bool
}

func newSession() call.Session {
	return call.Session{
		CallerID:    "u1",
		ReceiverID:  "u2",
		ChannelName: call.ChannelName("u1", "u2"),
		Kind:        call.Video,
		Status:      call.StatusRinging,
	}
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for callback")
	}
	var zero T
	return zero
}

func TestCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	id, err := s.Create(ctx, newSession())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want found", ok, err)
	}
	if got.ID != id || got.CreatedAt.IsZero() {
		t.Errorf("Get() = %+v, want id %s with createdAt", got, id)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
	if _, ok, _ := s.Get(ctx, id); ok {
		t.Error("document should be gone")
	}
}

func TestUpdateMissingDoesNotResurrect(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.Create(ctx, newSession())
	_ = s.Delete(ctx, id)

	err := s.Update(ctx, id, signaling.Patch{Status: call.StatusActive})
	if !errors.Is(err, signaling.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if _, ok, _ := s.Get(ctx, id); ok {
		t.Error("update must not recreate a deleted document")
	}
}

func TestWatchDocumentSequence(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.Create(ctx, newSession())

	events := make(chan docEvent, 10)
	stop, err := s.WatchDocument(ctx, id, func(sess call.Session, exists bool) {
		events <- docEvent{sess, exists}
	})
	if err != nil {
		t.Fatalf("WatchDocument() error = %v", err)
	}
	defer stop()

	if ev := recv(t, events); !ev.exists || ev.sess.Status != call.StatusRinging {
		t.Errorf("initial snapshot = %+v, want ringing", ev)
	}

	_ = s.Update(ctx, id, signaling.Patch{Status: call.StatusActive})
	if ev := recv(t, events); ev.sess.Status != call.StatusActive {
		t.Errorf("after update = %+v, want active", ev)
	}

	_ = s.Delete(ctx, id)
	if ev := recv(t, events); ev.exists {
		t.Errorf("after delete exists = true, want false")
	}
}

func TestWatchQueryFiltersReceiverAndStatus(t *testing.T) {
	ctx := context.Background()
	s := New()

	results := make(chan []call.Session, 10)
	stop, _ := s.WatchQuery(ctx, signaling.Query{ReceiverID: "u2", Status: call.StatusRinging}, func(res []call.Session) {
		results <- res
	})
	defer stop()

	if res := recv(t, results); len(res) != 0 {
		t.Fatalf("initial result = %v, want empty", res)
	}

	other := newSession()
	other.ReceiverID = "u3"
	_, _ = s.Create(ctx, other)

	id, _ := s.Create(ctx, newSession())
	res := recv(t, results)
	if len(res) != 1 || res[0].ID != id {
		t.Fatalf("result = %v, want only %s", res, id)
	}

	_ = s.Update(ctx, id, signaling.Patch{Status: call.StatusActive})
	if res := recv(t, results); len(res) != 0 {
		t.Errorf("result after accept = %v, want empty", res)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _ := s.Create(ctx, newSession())

	events := make(chan docEvent, 10)
	stop, _ := s.WatchDocument(ctx, id, func(sess call.Session, exists bool) {
		events <- docEvent{sess, exists}
	})
	recv(t, events)
	stop()
	stop()

	_ = s.Delete(ctx, id)
	select {
	case ev := <-events:
		t.Errorf("callback after cancel: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContextCancelEndsWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New()

	results := make(chan []call.Session, 10)
	_, _ = s.WatchQuery(ctx, signaling.Query{ReceiverID: "u2"}, func(res []call.Session) {
		results <- res
	})
	recv(t, results)
	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		s.mu.Lock()
		n := len(s.subs)
		s.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription not removed after context cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
