package call

import "time"

// State is the coarse local call state.
type State int

const (
	StateNone State = iota
	StateOutgoing
	StateIncoming
	StateActive
)

func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateOutgoing:
		return "OUTGOING"
	case StateIncoming:
		return "INCOMING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// Role is the local participant's side of a call.
type Role string

const (
	RoleCaller   Role = "caller"
	RoleReceiver Role = "receiver"
)

// Details is the per-call information every non-empty Call carries.
type Details struct {
	SessionID   string
	ChannelName string
	Kind        MediaKind
	Peer        Profile
}

// Call is the local, unshared view of the call in progress. It is one of
// NoCall, Outgoing, Incoming or Active.
type Call interface {
	State() State
	isCall()
}

// NoCall means the client is not in a call.
type NoCall struct{}

// Outgoing is a call the local user placed that has not been answered.
// SessionID stays empty until the signaling store acknowledges the create.
type Outgoing struct {
	Details
	attempt uint64
}

// Incoming is a ringing call addressed to the local user.
type Incoming struct {
	Details
}

// Active is an answered call.
type Active struct {
	Details
	Role  Role
	Since time.Time
}

func (NoCall) State() State   { return StateNone }
func (Outgoing) State() State { return StateOutgoing }
func (Incoming) State() State { return StateIncoming }
func (Active) State() State   { return StateActive }

func (NoCall) isCall()   {}
func (Outgoing) isCall() {}
func (Incoming) isCall() {}
func (Active) isCall()   {}

// DetailsOf returns the details of c, or false for NoCall.
func DetailsOf(c Call) (Details, bool) {
	switch v := c.(type) {
	case Outgoing:
		return v.Details, true
	case Incoming:
		return v.Details, true
	case Active:
		return v.Details, true
	}
	return Details{}, false
}

// SessionIDOf returns the session id of c, empty for NoCall or an
// unacknowledged outgoing call.
func SessionIDOf(c Call) string {
	d, _ := DetailsOf(c)
	return d.SessionID
}

// Parties returns the caller and receiver ids of c from the point of view of
// the local user self. Both are empty for NoCall.
func Parties(c Call, self string) (callerID, receiverID string) {
	switch v := c.(type) {
	case Outgoing:
		return self, v.Peer.ID
	case Incoming:
		return v.Peer.ID, self
	case Active:
		if v.Role == RoleCaller {
			return self, v.Peer.ID
		}
		return v.Peer.ID, self
	}
	return "", ""
}
