package signaling

import (
	"context"
	"errors"

	"github.com/matheus3301/famcall/internal/call"
)

// ErrNotFound is returned when a session document does not exist.
var ErrNotFound = errors.New("session not found")

// Patch is a partial update of a session document. Zero fields are left
// untouched.
type Patch struct {
	Status call.Status
	DocID  string
}

// Query selects session documents by receiver and status.
type Query struct {
	ReceiverID string
	Status     call.Status
}

// Match reports whether s satisfies q. Empty fields match anything.
func (q Query) Match(s call.Session) bool {
	if q.ReceiverID != "" && s.ReceiverID != q.ReceiverID {
		return false
	}
	if q.Status != "" && s.Status != q.Status {
		return false
	}
	return true
}

// Store is the shared document store through which the two clients of a call
// coordinate.
//
// Watch callbacks fire once with the current snapshot, then on every change,
// in order for a given subscription. The returned function cancels the
// subscription without waiting: a callback already running may finish, but
// no new one starts. Callbacks may therefore call back into the store.
type Store interface {
	// Create inserts s and returns the assigned id. CreatedAt is set by the
	// store.
	Create(ctx context.Context, s call.Session) (string, error)
	// Update applies p to an existing document. It returns ErrNotFound when
	// the document is absent and never recreates it.
	Update(ctx context.Context, id string, p Patch) error
	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, id string) error
	// Get returns the document, or false when it does not exist.
	Get(ctx context.Context, id string) (call.Session, bool, error)
	// WatchDocument reports the document on every change; exists is false once
	// it has been deleted.
	WatchDocument(ctx context.Context, id string, fn func(s call.Session, exists bool)) (func(), error)
	// WatchQuery reports the full matching set on every change that may
	// affect it.
	WatchQuery(ctx context.Context, q Query, fn func([]call.Session)) (func(), error)
}
