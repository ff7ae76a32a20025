package signaling_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/signaling"
	"github.com/matheus3301/famcall/internal/signaling/memstore"
)

type profiles map[string]string

func (p profiles) ProfileOf(_ context.Context, id string) (call.Profile, error) {
	if name, ok := p[id]; ok {
		return call.Profile{ID: id, Name: name}, nil
	}
	return call.Profile{ID: id, Name: "Someone"}, nil
}

type history struct {
	mu      sync.Mutex
	records []call.Record
}

func (h *history) WriteCallRecord(_ context.Context, r call.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	return nil
}

func (h *history) all() []call.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]call.Record(nil), h.records...)
}

// countingStore counts writes and can fail or gate creates.
type countingStore struct {
	signaling.Store
	mu        sync.Mutex
	creates   int
	updates   int
	deletes   int
	createErr error
	deleteErr error
	gate      chan struct{}
}

func (c *countingStore) Create(ctx context.Context, s call.Session) (string, error) {
	c.mu.Lock()
	c.creates++
	err, gate := c.createErr, c.gate
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return "", err
	}
	return c.Store.Create(ctx, s)
}

func (c *countingStore) Update(ctx context.Context, id string, p signaling.Patch) error {
	c.mu.Lock()
	if p.Status != "" {
		c.updates++
	}
	c.mu.Unlock()
	return c.Store.Update(ctx, id, p)
}

func (c *countingStore) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	c.deletes++
	err := c.deleteErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.Store.Delete(ctx, id)
}

func (c *countingStore) counts() (creates, updates, deletes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creates, c.updates, c.deletes
}

type client struct {
	machine *call.Machine
	rec     *signaling.Reconciler
	history *history
}

func newClient(t *testing.T, self string, store signaling.Store) *client {
	t.Helper()
	m := call.NewMachine(nil)
	h := &history{}
	r := signaling.NewReconciler(self, store, m, profiles{"u1": "Ana", "u2": "Mom"}, h, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(r.Stop)
	return &client{machine: m, rec: r, history: h}
}

func waitState(t *testing.T, m *call.Machine, want call.State) call.Call {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		cur := m.Current()
		if cur.State() == want {
			return cur
		}
		if time.Now().After(deadline) {
			t.Fatalf("state = %s, want %s", cur.State(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitRecords(t *testing.T, h *history, n int) []call.Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		recs := h.all()
		if len(recs) >= n {
			return recs
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d records, want %d", len(recs), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCallScenario(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := newClient(t, "u1", store)
	b := newClient(t, "u2", store)

	out, ok, err := a.rec.StartCall(ctx, "u2", call.Video)
	if err != nil || !ok {
		t.Fatalf("StartCall() = %v, %v", ok, err)
	}
	sess, exists, _ := store.Get(ctx, out.SessionID)
	if !exists {
		t.Fatal("session document not created")
	}
	if sess.CallerID != "u1" || sess.ReceiverID != "u2" || sess.Status != call.StatusRinging || sess.Kind != call.Video {
		t.Errorf("session = %+v", sess)
	}
	if sess.ChannelName != call.ChannelName("u2", "u1") {
		t.Errorf("channel = %q, want %q", sess.ChannelName, call.ChannelName("u1", "u2"))
	}

	in := waitState(t, b.machine, call.StateIncoming).(call.Incoming)
	if in.Peer.Name != "Ana" || in.SessionID != out.SessionID {
		t.Errorf("incoming = %+v, want Ana on %s", in, out.SessionID)
	}

	if _, ok, err := b.rec.AcceptCall(ctx); err != nil || !ok {
		t.Fatalf("AcceptCall() = %v, %v", ok, err)
	}
	act := waitState(t, a.machine, call.StateActive).(call.Active)
	if act.Role != call.RoleCaller {
		t.Errorf("caller role = %s", act.Role)
	}

	if _, ok := a.rec.EndCall(ctx); !ok {
		t.Fatal("EndCall() should succeed")
	}
	waitState(t, b.machine, call.StateNone)
	if _, exists, _ := store.Get(ctx, out.SessionID); exists {
		t.Error("session document should be deleted")
	}

	recs := append(a.history.all(), waitRecords(t, b.history, 1)...)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want one per side", len(recs))
	}
	for _, r := range recs {
		if r.Missed || r.CallerID != "u1" || r.ReceiverID != "u2" {
			t.Errorf("record = %+v, want completed call from u1 to u2", r)
		}
	}
}

// TestStartWhileBusyCreatesNothing checks a client never creates a second
// session document while it is in a call.
func TestStartWhileBusyCreatesNothing(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memstore.New()}
	a := newClient(t, "u1", store)

	if _, ok, _ := a.rec.StartCall(ctx, "u2", call.Audio); !ok {
		t.Fatal("first StartCall should succeed")
	}
	if _, ok, err := a.rec.StartCall(ctx, "u3", call.Audio); ok || err != nil {
		t.Errorf("second StartCall() = %v, %v; want no-op", ok, err)
	}
	if creates, _, _ := store.counts(); creates != 1 {
		t.Errorf("creates = %d, want 1", creates)
	}
}

func TestStartCallRejectsSelf(t *testing.T) {
	a := newClient(t, "u1", memstore.New())
	if _, _, err := a.rec.StartCall(context.Background(), "u1", call.Audio); err == nil {
		t.Error("calling yourself should fail")
	}
}

func TestCreateFailureReturnsToNone(t *testing.T) {
	store := &countingStore{Store: memstore.New(), createErr: errors.New("unavailable")}
	a := newClient(t, "u1", store)

	if _, ok, err := a.rec.StartCall(context.Background(), "u2", call.Video); err == nil || ok {
		t.Errorf("StartCall() = %v, %v; want error", ok, err)
	}
	if s := a.machine.Current().State(); s != call.StateNone {
		t.Errorf("state = %s, want NONE", s)
	}
}

func TestEndedBeforeCreateAckDeletesDocument(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	store := &countingStore{Store: mem, gate: make(chan struct{})}
	a := newClient(t, "u1", store)

	done := make(chan bool)
	go func() {
		_, ok, _ := a.rec.StartCall(ctx, "u2", call.Audio)
		done <- ok
	}()
	waitState(t, a.machine, call.StateOutgoing)
	a.rec.EndCall(ctx)
	close(store.gate)

	if ok := <-done; ok {
		t.Error("StartCall should report the call as not placed")
	}
	res := make(chan []call.Session, 1)
	stop, _ := mem.WatchQuery(ctx, signaling.Query{}, func(s []call.Session) { res <- s })
	defer stop()
	if got := <-res; len(got) != 0 {
		t.Errorf("documents left behind: %v", got)
	}
	if recs := a.history.all(); len(recs) != 1 || !recs[0].Missed {
		t.Errorf("records = %+v, want one missed call", recs)
	}
}

func TestAcceptTwiceUpdatesOnce(t *testing.T) {
	ctx := context.Background()
	mem := memstore.New()
	a := newClient(t, "u1", mem)
	store := &countingStore{Store: mem}
	b := newClient(t, "u2", store)

	a.rec.StartCall(ctx, "u2", call.Audio)
	waitState(t, b.machine, call.StateIncoming)

	if _, ok, _ := b.rec.AcceptCall(ctx); !ok {
		t.Fatal("first accept should succeed")
	}
	if _, ok, _ := b.rec.AcceptCall(ctx); ok {
		t.Error("second accept should be a no-op")
	}
	if _, updates, _ := store.counts(); updates != 1 {
		t.Errorf("status updates = %d, want 1", updates)
	}
}

func TestMissedCallAttributedToCaller(t *testing.T) {
	tests := []struct {
		name  string
		ender string
	}{
		{"caller cancels", "u1"},
		{"receiver declines", "u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memstore.New()
			a := newClient(t, "u1", store)
			b := newClient(t, "u2", store)

			a.rec.StartCall(ctx, "u2", call.Video)
			waitState(t, b.machine, call.StateIncoming)

			ender, other := a, b
			if tt.ender == "u2" {
				ender, other = b, a
			}
			ender.rec.EndCall(ctx)
			waitState(t, other.machine, call.StateNone)
			waitRecords(t, other.history, 1)
			time.Sleep(20 * time.Millisecond)

			for _, c := range []*client{a, b} {
				recs := c.history.all()
				if len(recs) != 1 {
					t.Fatalf("got %d records, want exactly 1 per side", len(recs))
				}
				r := recs[0]
				if !r.Missed || r.CallerID != "u1" || r.ReceiverID != "u2" || r.Kind != call.Video {
					t.Errorf("record = %+v, want missed video from u1 to u2", r)
				}
			}
		})
	}
}

// TestReceiverRecordsCancelledCall checks the receiver's own history shows a
// call the caller gave up on while it was still ringing.
func TestReceiverRecordsCancelledCall(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := newClient(t, "u1", store)
	b := newClient(t, "u2", store)

	a.rec.StartCall(ctx, "u2", call.Audio)
	waitState(t, b.machine, call.StateIncoming)
	a.rec.EndCall(ctx)
	waitState(t, b.machine, call.StateNone)

	recs := waitRecords(t, b.history, 1)
	time.Sleep(20 * time.Millisecond)
	if recs = b.history.all(); len(recs) != 1 {
		t.Fatalf("receiver records = %d, want 1", len(recs))
	}
	if r := recs[0]; !r.Missed || r.CallerID != "u1" || r.ReceiverID != "u2" {
		t.Errorf("record = %+v, want missed call from u1", r)
	}
	if recs := a.history.all(); len(recs) != 1 {
		t.Errorf("caller records = %d, want 1", len(recs))
	}
}

func TestDeleteFailureStillClearsState(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memstore.New(), deleteErr: errors.New("offline")}
	a := newClient(t, "u1", store)
	a.rec.StartCall(ctx, "u2", call.Audio)

	if _, ok := a.rec.EndCall(ctx); !ok {
		t.Fatal("EndCall should succeed")
	}
	if s := a.machine.Current().State(); s != call.StateNone {
		t.Errorf("state = %s, want NONE", s)
	}
}

func TestRemoteDeleteWhileActive(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := newClient(t, "u1", store)
	b := newClient(t, "u2", store)

	out, _, _ := a.rec.StartCall(ctx, "u2", call.Audio)
	waitState(t, b.machine, call.StateIncoming)
	b.rec.AcceptCall(ctx)
	waitState(t, a.machine, call.StateActive)

	// The document vanishing is enough; nobody ran EndCall on b.
	_ = store.Delete(ctx, out.SessionID)
	waitState(t, a.machine, call.StateNone)
	waitState(t, b.machine, call.StateNone)

	for _, c := range []*client{a, b} {
		if r := waitRecords(t, c.history, 1)[0]; r.Missed {
			t.Errorf("record = %+v, want a completed call", r)
		}
	}
}

func TestBusyClientIgnoresSecondRing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	a := newClient(t, "u1", store)
	b := newClient(t, "u2", store)
	c := newClient(t, "u3", store)

	first, _, _ := a.rec.StartCall(ctx, "u2", call.Audio)
	waitState(t, b.machine, call.StateIncoming)
	c.rec.StartCall(ctx, "u2", call.Audio)

	time.Sleep(50 * time.Millisecond)
	if got := call.SessionIDOf(b.machine.Current()); got != first.SessionID {
		t.Errorf("ringing session = %s, want %s", got, first.SessionID)
	}
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	id, _ := store.Create(ctx, call.Session{
		CallerID: "u1", ReceiverID: "u2", ChannelName: call.ChannelName("u1", "u2"),
		Kind: call.Audio, Status: call.StatusRinging,
	})

	m := call.NewMachine(nil)
	r := signaling.NewReconciler("u2", store, m, profiles{"u1": "Ana"}, nil, nil)

	in, ok, err := r.Bootstrap(ctx, id)
	if err != nil || !ok {
		t.Fatalf("Bootstrap() = %v, %v", ok, err)
	}
	if in.Peer.Name != "Ana" {
		t.Errorf("peer = %+v, want Ana", in.Peer)
	}
	if _, ok, _ := r.Bootstrap(ctx, id); ok {
		t.Error("Bootstrap while INCOMING should be a no-op")
	}
	r.Stop()
}

func TestBootstrapMissingSession(t *testing.T) {
	m := call.NewMachine(nil)
	r := signaling.NewReconciler("u2", memstore.New(), m, nil, nil, nil)
	if _, ok, err := r.Bootstrap(context.Background(), "gone"); ok || err != nil {
		t.Errorf("Bootstrap() = %v, %v; want ignored", ok, err)
	}
	if m.Current().State() != call.StateNone {
		t.Error("state should stay NONE")
	}
}
