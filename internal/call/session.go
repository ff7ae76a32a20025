package call

import (
	"fmt"
	"time"
)

// MediaKind is the kind of media a call carries.
type MediaKind string

const (
	Audio MediaKind = "audio"
	Video MediaKind = "video"
)

// ParseMediaKind validates a wire value.
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case Audio, Video:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("invalid media kind %q: must be audio or video", s)
}

// Status is the persisted status of a call session document. A session that
// has ended has no document at all; there is no "ended" status.
type Status string

const (
	StatusRinging Status = "ringing"
	StatusActive  Status = "active"
)

// Session is the shared signaling record for one call attempt.
type Session struct {
	ID          string    `json:"docId"`
	CallerID    string    `json:"callerId"`
	ReceiverID  string    `json:"receiverId"`
	ChannelName string    `json:"channelName"`
	Kind        MediaKind `json:"type"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Involves reports whether userID is one of the two participants.
func (s Session) Involves(userID string) bool {
	return s.CallerID == userID || s.ReceiverID == userID
}

// Profile identifies the other participant of a call.
type Profile struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// DisplayName returns the name, or the id when no name is known.
func (p Profile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// ChatID returns the conversation key shared by two users. The larger id
// goes first so both sides derive the same key.
func ChatID(a, b string) string {
	if a > b {
		return a + "_" + b
	}
	return b + "_" + a
}

// ChannelName returns the media channel name for a call between a and b.
// It is symmetric: ChannelName(a, b) == ChannelName(b, a).
func ChannelName(a, b string) string {
	return "call_" + ChatID(a, b)
}

// Record is a call entry for the chat history. Missed records are produced
// when a call ends before reaching ACTIVE; CallerID is always the sender.
type Record struct {
	CallerID   string
	ReceiverID string
	Kind       MediaKind
	Missed     bool
	Duration   time.Duration
	At         time.Time
}

// RecordFor builds the history record for a call c ended by self at time at.
func RecordFor(c Call, self string, at time.Time) (Record, bool) {
	d, ok := DetailsOf(c)
	if !ok {
		return Record{}, false
	}
	callerID, receiverID := Parties(c, self)
	r := Record{CallerID: callerID, ReceiverID: receiverID, Kind: d.Kind, At: at}
	if act, ok := c.(Active); ok {
		r.Duration = at.Sub(act.Since).Truncate(time.Second)
	} else {
		r.Missed = true
	}
	return r, true
}
