package bus

import "time"

// Event represents a domain event published on the bus. Kinds are dotted,
// namespaced names such as "call.state_changed" or "media.joined".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
