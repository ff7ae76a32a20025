package signaling

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/famcall/internal/call"
	"go.uber.org/zap"
)

// ProfileResolver looks up the display profile of a user.
type ProfileResolver interface {
	ProfileOf(ctx context.Context, userID string) (call.Profile, error)
}

// HistoryWriter persists call records into the chat history.
type HistoryWriter interface {
	WriteCallRecord(ctx context.Context, r call.Record) error
}

// Reconciler keeps the local call machine and the shared session documents
// in agreement. Local intents are applied to the machine first and then
// written to the store; remote changes observed through subscriptions are
// fed back into the machine. Document absence always ends the call.
type Reconciler struct {
	self     string
	store    Store
	machine  *call.Machine
	profiles ProfileResolver
	history  HistoryWriter
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	incoming func()
	watch    activeWatch
	ended    string
}

// activeWatch is the document subscription bound to one (session, state) pair.
type activeWatch struct {
	sessionID string
	state     call.State
	gen       uint64
	stop      func()
}

// NewReconciler creates a reconciler for the local user self. history may be
// nil, in which case no call records are written.
func NewReconciler(self string, store Store, m *call.Machine, profiles ProfileResolver, history HistoryWriter, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{
		self:     self,
		store:    store,
		machine:  m,
		profiles: profiles,
		history:  history,
		logger:   logger,
		now:      time.Now,
		ctx:      context.Background(),
	}
	m.Observe(r.onChange)
	return r
}

// Start opens the incoming-call subscription. Watches opened later for the
// active session are bound to ctx as well.
func (r *Reconciler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.ctx, r.cancel = ctx, cancel
	r.mu.Unlock()

	stop, err := r.store.WatchQuery(ctx, Query{ReceiverID: r.self, Status: call.StatusRinging}, r.onIncoming)
	if err != nil {
		cancel()
		return fmt.Errorf("watch incoming calls: %w", err)
	}

	r.mu.Lock()
	r.incoming = stop
	r.mu.Unlock()
	r.logger.Info("incoming call subscription started", zap.String("user", r.self))
	return nil
}

// Stop cancels every subscription.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	incoming, watch, cancel := r.incoming, r.watch, r.cancel
	r.incoming = nil
	r.watch = activeWatch{gen: watch.gen + 1}
	r.mu.Unlock()

	if incoming != nil {
		incoming()
	}
	if watch.stop != nil {
		watch.stop()
	}
	if cancel != nil {
		cancel()
	}
}

// StartCall places a call to peerID. It returns ok=false without touching the
// store when a call is already in progress.
func (r *Reconciler) StartCall(ctx context.Context, peerID string, kind call.MediaKind) (call.Outgoing, bool, error) {
	if peerID == "" || peerID == r.self {
		return call.Outgoing{}, false, fmt.Errorf("invalid peer %q", peerID)
	}
	if _, idle := r.machine.Current().(call.NoCall); !idle {
		return call.Outgoing{}, false, nil
	}

	peer := r.resolve(ctx, peerID)
	channel := call.ChannelName(r.self, peerID)
	_, attempt, ok := r.machine.Start(peer, channel, kind)
	if !ok {
		return call.Outgoing{}, false, nil
	}

	id, err := r.store.Create(ctx, call.Session{
		CallerID:    r.self,
		ReceiverID:  peerID,
		ChannelName: channel,
		Kind:        kind,
		Status:      call.StatusRinging,
	})
	if err != nil {
		r.logger.Error("failed to create call session", zap.Error(err), zap.String("peer", peerID))
		r.machine.Abort(attempt)
		return call.Outgoing{}, false, fmt.Errorf("create session: %w", err)
	}

	if err := r.store.Update(ctx, id, Patch{DocID: id}); err != nil {
		r.logger.Warn("failed to write session id back", zap.Error(err), zap.String("session_id", id))
	}

	bound, ok := r.machine.Bind(attempt, id)
	if !ok {
		// Ended locally while the create was in flight.
		r.logger.Info("call ended before session was acknowledged", zap.String("session_id", id))
		r.deleteSession(ctx, id)
		return call.Outgoing{}, false, nil
	}

	r.logger.Info("call started",
		zap.String("session_id", id),
		zap.String("peer", peerID),
		zap.String("channel", channel),
		zap.String("kind", string(kind)),
	)
	return bound, true, nil
}

// AcceptCall answers the ringing call. A second accept is a no-op.
func (r *Reconciler) AcceptCall(ctx context.Context) (call.Active, bool, error) {
	act, ok := r.machine.Accept()
	if !ok {
		return call.Active{}, false, nil
	}
	if err := r.store.Update(ctx, act.SessionID, Patch{Status: call.StatusActive}); err != nil {
		r.logger.Error("failed to mark session active", zap.Error(err), zap.String("session_id", act.SessionID))
		return act, true, fmt.Errorf("accept session: %w", err)
	}
	r.logger.Info("call accepted", zap.String("session_id", act.SessionID))
	return act, true, nil
}

// EndCall hangs up, declines or cancels the current call. The local state is
// NONE when it returns, whatever the store does.
func (r *Reconciler) EndCall(ctx context.Context) (call.Call, bool) {
	prev, ok := r.machine.End()
	if !ok {
		return prev, false
	}

	r.record(ctx, prev)

	if id := call.SessionIDOf(prev); id != "" {
		r.mu.Lock()
		r.ended = id
		r.mu.Unlock()
		r.deleteSession(ctx, id)
	}
	r.logger.Info("call ended", zap.String("session_id", call.SessionIDOf(prev)), zap.Stringer("from", prev.State()))
	return prev, true
}

// Bootstrap seeds an incoming call from an externally supplied session id,
// such as a notification deep link. It does nothing unless the client is idle.
func (r *Reconciler) Bootstrap(ctx context.Context, sessionID string) (call.Incoming, bool, error) {
	if _, idle := r.machine.Current().(call.NoCall); !idle {
		return call.Incoming{}, false, nil
	}
	s, exists, err := r.store.Get(ctx, sessionID)
	if err != nil {
		return call.Incoming{}, false, fmt.Errorf("get session: %w", err)
	}
	if !exists {
		r.logger.Warn("deep-linked session no longer exists", zap.String("session_id", sessionID))
		return call.Incoming{}, false, nil
	}
	if s.ReceiverID != r.self {
		return call.Incoming{}, false, fmt.Errorf("session %s is not addressed to %s", sessionID, r.self)
	}
	in, ok := r.ring(ctx, s)
	return in, ok, nil
}

func (r *Reconciler) onIncoming(sessions []call.Session) {
	r.mu.Lock()
	ended := r.ended
	r.mu.Unlock()
	// A snapshot taken before our own delete landed may still list the
	// session we just declined.
	sessions = slices.DeleteFunc(sessions, func(s call.Session) bool { return s.ID == ended })
	if len(sessions) == 0 {
		return
	}
	s := sessions[0]
	switch cur := r.machine.Current(); {
	case call.SessionIDOf(cur) == s.ID:
		return
	case cur.State() != call.StateNone:
		r.logger.Info("ignoring incoming call while busy",
			zap.String("session_id", s.ID),
			zap.String("caller", s.CallerID),
			zap.Stringer("state", cur.State()),
		)
		return
	}

	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	r.ring(ctx, s)
}

func (r *Reconciler) ring(ctx context.Context, s call.Session) (call.Incoming, bool) {
	in, ok := r.machine.Ring(call.Details{
		SessionID:   s.ID,
		ChannelName: s.ChannelName,
		Kind:        s.Kind,
		Peer:        r.resolve(ctx, s.CallerID),
	})
	if ok {
		r.logger.Info("incoming call", zap.String("session_id", s.ID), zap.String("caller", s.CallerID))
	}
	return in, ok
}

// onChange re-binds the active-session watch whenever the session id or the
// state changes.
func (r *Reconciler) onChange(ch call.Change) {
	id := call.SessionIDOf(ch.To)
	state := ch.To.State()

	r.mu.Lock()
	if r.watch.sessionID == id && r.watch.state == state {
		r.mu.Unlock()
		return
	}
	old := r.watch
	gen := old.gen + 1
	r.watch = activeWatch{sessionID: id, state: state, gen: gen}
	ctx := r.ctx
	r.mu.Unlock()

	if old.stop != nil {
		old.stop()
	}
	if id == "" {
		return
	}

	stop, err := r.store.WatchDocument(ctx, id, func(s call.Session, exists bool) {
		r.onDocument(gen, id, s, exists)
	})
	if err != nil {
		r.logger.Error("failed to watch session", zap.Error(err), zap.String("session_id", id))
		return
	}

	r.mu.Lock()
	if r.watch.gen == gen {
		r.watch.stop = stop
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	stop()
}

func (r *Reconciler) onDocument(gen uint64, id string, s call.Session, exists bool) {
	r.mu.Lock()
	stale := r.watch.gen != gen
	r.mu.Unlock()
	if stale {
		return
	}

	if !exists {
		if prev, ok := r.machine.RemoteEnded(id); ok {
			r.logger.Info("call ended remotely", zap.String("session_id", id), zap.Stringer("from", prev.State()))
			r.mu.Lock()
			ctx := r.ctx
			r.mu.Unlock()
			r.record(ctx, prev)
		}
		return
	}
	if s.Status == call.StatusActive {
		if _, ok := r.machine.RemoteAccepted(id); ok {
			r.logger.Info("call accepted remotely", zap.String("session_id", id))
		}
	}
}

// record writes the receipt of a finished call into the local history. Each
// side keeps its own history, so both the side that hung up and the side that
// saw the session vanish record the call.
func (r *Reconciler) record(ctx context.Context, prev call.Call) {
	if r.history == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rec, ok := call.RecordFor(prev, r.self, r.now())
	if !ok {
		return
	}
	if err := r.history.WriteCallRecord(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Error("failed to write call record", zap.Error(err), zap.Bool("missed", rec.Missed))
	}
}

func (r *Reconciler) resolve(ctx context.Context, userID string) call.Profile {
	if r.profiles == nil {
		return call.Profile{ID: userID}
	}
	p, err := r.profiles.ProfileOf(ctx, userID)
	if err != nil {
		r.logger.Warn("failed to resolve profile", zap.Error(err), zap.String("user", userID))
		return call.Profile{ID: userID}
	}
	return p
}

func (r *Reconciler) deleteSession(ctx context.Context, id string) {
	if err := r.store.Delete(ctx, id); err != nil {
		r.logger.Warn("failed to delete call session", zap.Error(err), zap.String("session_id", id))
	}
}
