package call

import (
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/famcall/internal/bus"
)

// Cause names what drove a transition.
type Cause string

const (
	CauseStart        Cause = "start"
	CauseBind         Cause = "bind"
	CauseAbort        Cause = "abort"
	CauseRing         Cause = "ring"
	CauseAccept       Cause = "accept"
	CauseRemoteAccept Cause = "remote_accept"
	CauseEnd          Cause = "end"
	CauseRemoteEnd    Cause = "remote_end"
)

// Change describes one committed transition.
type Change struct {
	From  Call
	To    Call
	Cause Cause
}

// EnteredActive reports whether the change is the edge into ACTIVE.
func (c Change) EnteredActive() bool {
	return c.From.State() != StateActive && c.To.State() == StateActive
}

// LeftActive reports whether the change is the edge out of ACTIVE.
func (c Change) LeftActive() bool {
	return c.From.State() == StateActive && c.To.State() != StateActive
}

// validTransitions defines allowed state moves. OUTGOING and INCOMING never
// lead to each other, and binding a session id keeps OUTGOING in place.
var validTransitions = map[State][]State{
	StateNone:     {StateOutgoing, StateIncoming},
	StateOutgoing: {StateOutgoing, StateActive, StateNone},
	StateIncoming: {StateActive, StateNone},
	StateActive:   {StateNone},
}

// Machine is the authoritative local call state. Requests that do not fit the
// current state are no-ops and report ok=false.
//
// Observers receive every change in commit order. They run on the goroutine
// that committed (or a later committer) and must not call back into the
// Machine synchronously.
type Machine struct {
	mu      sync.Mutex
	current Call
	attempt uint64
	pending []Change
	bus     *bus.Bus
	now     func() time.Time

	deliverMu sync.Mutex
	observers []func(Change)
}

// NewMachine creates a machine in the NONE state. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: NoCall{},
		bus:     b,
		now:     time.Now,
	}
}

// Observe registers fn for all future changes.
func (m *Machine) Observe(fn func(Change)) {
	m.deliverMu.Lock()
	m.observers = append(m.observers, fn)
	m.deliverMu.Unlock()
}

// Current returns the current call.
func (m *Machine) Current() Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Start moves NONE → OUTGOING optimistically, before any signaling write.
// The returned attempt identifies this call until a session id is bound.
func (m *Machine) Start(peer Profile, channelName string, kind MediaKind) (Outgoing, uint64, bool) {
	m.mu.Lock()
	if _, idle := m.current.(NoCall); !idle {
		m.mu.Unlock()
		return Outgoing{}, 0, false
	}
	m.attempt++
	out := Outgoing{
		Details: Details{ChannelName: channelName, Kind: kind, Peer: peer},
		attempt: m.attempt,
	}
	m.commit(out, CauseStart)
	m.mu.Unlock()
	m.flush()
	return out, out.attempt, true
}

// Bind attaches the acknowledged session id to the outgoing call started by
// attempt. It fails when that attempt is no longer the current call.
func (m *Machine) Bind(attempt uint64, sessionID string) (Outgoing, bool) {
	m.mu.Lock()
	out, ok := m.current.(Outgoing)
	if !ok || out.attempt != attempt || out.SessionID != "" {
		m.mu.Unlock()
		return Outgoing{}, false
	}
	out.SessionID = sessionID
	m.commit(out, CauseBind)
	m.mu.Unlock()
	m.flush()
	return out, true
}

// Abort drops the outgoing call started by attempt, used when the session
// could not be created.
func (m *Machine) Abort(attempt uint64) bool {
	m.mu.Lock()
	out, ok := m.current.(Outgoing)
	if !ok || out.attempt != attempt {
		m.mu.Unlock()
		return false
	}
	m.commit(NoCall{}, CauseAbort)
	m.mu.Unlock()
	m.flush()
	return true
}

// Ring moves NONE → INCOMING for a ringing session addressed to us.
func (m *Machine) Ring(d Details) (Incoming, bool) {
	if d.SessionID == "" {
		return Incoming{}, false
	}
	m.mu.Lock()
	if _, idle := m.current.(NoCall); !idle {
		m.mu.Unlock()
		return Incoming{}, false
	}
	in := Incoming{Details: d}
	m.commit(in, CauseRing)
	m.mu.Unlock()
	m.flush()
	return in, true
}

// Accept moves INCOMING → ACTIVE.
func (m *Machine) Accept() (Active, bool) {
	m.mu.Lock()
	in, ok := m.current.(Incoming)
	if !ok {
		m.mu.Unlock()
		return Active{}, false
	}
	act := Active{Details: in.Details, Role: RoleReceiver, Since: m.now()}
	m.commit(act, CauseAccept)
	m.mu.Unlock()
	m.flush()
	return act, true
}

// RemoteAccepted moves OUTGOING → ACTIVE when the tracked session was
// answered by the other side.
func (m *Machine) RemoteAccepted(sessionID string) (Active, bool) {
	m.mu.Lock()
	out, ok := m.current.(Outgoing)
	if !ok || out.SessionID == "" || out.SessionID != sessionID {
		m.mu.Unlock()
		return Active{}, false
	}
	act := Active{Details: out.Details, Role: RoleCaller, Since: m.now()}
	m.commit(act, CauseRemoteAccept)
	m.mu.Unlock()
	m.flush()
	return act, true
}

// End moves any call to NONE and returns what was ended.
func (m *Machine) End() (Call, bool) {
	m.mu.Lock()
	prev := m.current
	if _, idle := prev.(NoCall); idle {
		m.mu.Unlock()
		return prev, false
	}
	m.commit(NoCall{}, CauseEnd)
	m.mu.Unlock()
	m.flush()
	return prev, true
}

// RemoteEnded forces NONE when the document of the tracked session is gone,
// whatever the current state is.
func (m *Machine) RemoteEnded(sessionID string) (Call, bool) {
	m.mu.Lock()
	prev := m.current
	if sessionID == "" || SessionIDOf(prev) != sessionID {
		m.mu.Unlock()
		return prev, false
	}
	m.commit(NoCall{}, CauseRemoteEnd)
	m.mu.Unlock()
	m.flush()
	return prev, true
}

// commit must be called with mu held.
func (m *Machine) commit(to Call, cause Cause) {
	from := m.current
	if !slices.Contains(validTransitions[from.State()], to.State()) {
		panic("call: invalid transition " + from.State().String() + " -> " + to.State().String())
	}
	m.current = to
	m.pending = append(m.pending, Change{From: from, To: to, Cause: cause})
}

// flush delivers pending changes in commit order.
func (m *Machine) flush() {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()
	for {
		m.mu.Lock()
		if len(m.pending) == 0 {
			m.mu.Unlock()
			return
		}
		ch := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		for _, fn := range m.observers {
			fn(ch)
		}
		if m.bus != nil {
			m.bus.Publish(bus.Event{
				Kind:      "call.state_changed",
				Timestamp: time.Now(),
				Payload:   ch,
			})
		}
	}
}
