package push

import (
	"context"
	"sync"

	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/deeplink"
	"github.com/matheus3301/famcall/internal/signaling"
	"go.uber.org/zap"
)

// TypeIncomingCall is the notification type of a ring.
const TypeIncomingCall = "incoming_call"

// Notification is the payload delivered to a receiver's devices when a call
// starts ringing.
type Notification struct {
	Type       string         `json:"type"`
	DocID      string         `json:"docId"`
	CallerID   string         `json:"callerId"`
	CallerName string         `json:"callerName"`
	Kind       call.MediaKind `json:"kind"`
	Link       string         `json:"link"`
}

// Sink delivers notifications to connected devices.
type Sink interface {
	// Watching reports whether userID has a client open on the call screen.
	Watching(userID string) bool
	// Deliver hands n to every device of userID without blocking and
	// returns how many accepted it.
	Deliver(userID string, n Notification) int
}

// Notifier turns newly ringing sessions into notifications.
type Notifier struct {
	store    signaling.Store
	profiles signaling.ProfileResolver
	sink     Sink
	logger   *zap.Logger

	mu     sync.Mutex
	seen   map[string]struct{}
	cancel func()
}

func NewNotifier(store signaling.Store, profiles signaling.ProfileResolver, sink Sink, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		store:    store,
		profiles: profiles,
		sink:     sink,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
}

// Start subscribes to every ringing session.
func (n *Notifier) Start(ctx context.Context) error {
	cancel, err := n.store.WatchQuery(ctx, signaling.Query{Status: call.StatusRinging}, func(sessions []call.Session) {
		n.onRinging(ctx, sessions)
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()
	return nil
}

func (n *Notifier) Stop() {
	n.mu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (n *Notifier) onRinging(ctx context.Context, sessions []call.Session) {
	live := make(map[string]struct{}, len(sessions))
	var fresh []call.Session

	n.mu.Lock()
	for _, s := range sessions {
		live[s.ID] = struct{}{}
		if _, ok := n.seen[s.ID]; !ok {
			n.seen[s.ID] = struct{}{}
			fresh = append(fresh, s)
		}
	}
	for id := range n.seen {
		if _, ok := live[id]; !ok {
			delete(n.seen, id)
		}
	}
	n.mu.Unlock()

	for _, s := range fresh {
		n.notify(ctx, s)
	}
}

func (n *Notifier) notify(ctx context.Context, s call.Session) {
	log := n.logger.With(zap.String("session_id", s.ID), zap.String("receiver", s.ReceiverID))
	if n.sink.Watching(s.ReceiverID) {
		log.Debug("receiver is watching, no notification")
		return
	}

	name := s.CallerID
	if p, err := n.profiles.ProfileOf(ctx, s.CallerID); err != nil {
		log.Warn("caller profile lookup failed", zap.Error(err))
	} else {
		name = p.DisplayName()
	}

	delivered := n.sink.Deliver(s.ReceiverID, Notification{
		Type:       TypeIncomingCall,
		DocID:      s.ID,
		CallerID:   s.CallerID,
		CallerName: name,
		Kind:       s.Kind,
		Link:       deeplink.Format(s.ID),
	})
	log.Info("ring notification sent", zap.Int("devices", delivered))
}

// Directory is a fixed set of profiles.
type Directory map[string]call.Profile

// ProfileOf implements signaling.ProfileResolver.
func (d Directory) ProfileOf(_ context.Context, userID string) (call.Profile, error) {
	if p, ok := d[userID]; ok {
		return p, nil
	}
	return call.Profile{ID: userID, Name: "Someone"}, nil
}
