package status

import (
	"testing"

	"github.com/matheus3301/famcall/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current() != Disabled {
		t.Errorf("initial state = %s, want DISABLED", m.Current())
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from State
		to   State
	}{
		{Disabled, Connecting},
		{Connecting, Online},
		{Connecting, Reconnecting},
		{Connecting, Stopped},
		{Online, Reconnecting},
		{Online, Stopped},
		{Reconnecting, Connecting},
		{Stopped, Connecting},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(tt.to); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current() != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransition(t *testing.T) {
	m := NewMachine(nil)
	if err := m.Transition(Online); err == nil {
		t.Error("Transition(DISABLED -> ONLINE) should fail")
	}
	if m.Current() != Disabled {
		t.Errorf("state = %s, want DISABLED (should not have changed)", m.Current())
	}
}

func TestSameStateIsNoop(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(10, "presence.")
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Reconnecting)
	for len(ch) > 0 {
		<-ch
	}
	if err := m.Transition(Reconnecting); err != nil {
		t.Fatalf("RECONNECTING -> RECONNECTING: %v", err)
	}
	if len(ch) != 0 {
		t.Error("no-op transition published an event")
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe(10, "presence.")
	defer unsub()

	m := NewMachine(b)
	if err := m.Transition(Connecting); err != nil {
		t.Fatal(err)
	}

	evt := <-ch
	if evt.Kind != EventChanged {
		t.Errorf("event kind = %q, want %s", evt.Kind, EventChanged)
	}
	change, ok := evt.Payload.(StatusChange)
	if !ok {
		t.Fatalf("payload type = %T, want StatusChange", evt.Payload)
	}
	if change.From != Disabled || change.To != Connecting {
		t.Errorf("change = %v -> %v, want DISABLED -> CONNECTING", change.From, change.To)
	}
}

// TestDropAndRecover walks the reconnect loop a presence client goes through
// when the hub restarts.
func TestDropAndRecover(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Online)

	steps := []State{Reconnecting, Connecting, Online}
	for _, s := range steps {
		if err := m.Transition(s); err != nil {
			t.Fatalf("Transition to %s: %v (current: %s)", s, err, m.Current())
		}
	}
}

func TestOnlineCannotSkipToConnecting(t *testing.T) {
	m := NewMachine(nil)
	walkTo(t, m, Online)
	if err := m.Transition(Connecting); err == nil {
		t.Fatal("Transition(ONLINE -> CONNECTING) should fail; must go through RECONNECTING")
	}
}

func walkTo(t *testing.T, m *Machine, target State) {
	t.Helper()
	paths := map[State][]State{
		Disabled:     {},
		Connecting:   {Connecting},
		Online:       {Connecting, Online},
		Reconnecting: {Connecting, Reconnecting},
		Stopped:      {Connecting, Stopped},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}
