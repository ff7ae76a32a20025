package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/famcall/internal/bus"
)

// EventChanged is published on every transition.
const EventChanged = "presence.status_changed"

// State is the daemon's connection state to the push hub.
type State string

const (
	Disabled     State = "DISABLED"
	Connecting   State = "CONNECTING"
	Online       State = "ONLINE"
	Reconnecting State = "RECONNECTING"
	Stopped      State = "STOPPED"
)

var validTransitions = map[State][]State{
	Disabled:     {Connecting},
	Connecting:   {Online, Reconnecting, Stopped},
	Online:       {Reconnecting, Stopped},
	Reconnecting: {Connecting, Stopped},
	Stopped:      {Connecting},
}

// Machine tracks and enforces presence state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a machine in the Disabled state. b may be nil.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disabled,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Moving to the current state
// is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      EventChanged,
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
