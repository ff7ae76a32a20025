// Package memstore is an in-process signaling store. Both clients of a call
// must share the same Store value, so it serves tests and single-host setups.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/signaling"
)

// Store keeps session documents in memory.
type Store struct {
	mu   sync.Mutex
	docs map[string]call.Session
	subs map[int]*subscriber
	next int
	now  func() time.Time
}

var _ signaling.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		docs: make(map[string]call.Session),
		subs: make(map[int]*subscriber),
		now:  time.Now,
	}
}

// Create implements signaling.Store.
func (s *Store) Create(ctx context.Context, sess call.Session) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sess.ID = uuid.NewString()
	sess.CreatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[sess.ID] = sess
	s.notifyLocked(sess.ID, call.Session{}, false, sess, true)
	return sess.ID, nil
}

// Update implements signaling.Store.
func (s *Store) Update(ctx context.Context, id string, p signaling.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.docs[id]
	if !ok {
		return signaling.ErrNotFound
	}
	sess := old
	if p.Status != "" {
		sess.Status = p.Status
	}
	if p.DocID != "" {
		sess.ID = p.DocID
	}
	if sess == old {
		return nil
	}
	s.docs[id] = sess
	s.notifyLocked(id, old, true, sess, true)
	return nil
}

// Delete implements signaling.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.docs[id]
	if !ok {
		return nil
	}
	delete(s.docs, id)
	s.notifyLocked(id, old, true, call.Session{}, false)
	return nil
}

// Get implements signaling.Store.
func (s *Store) Get(ctx context.Context, id string) (call.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return call.Session{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.docs[id]
	return sess, ok, nil
}

// WatchDocument implements signaling.Store.
func (s *Store) WatchDocument(ctx context.Context, id string, fn func(call.Session, bool)) (func(), error) {
	sub := &subscriber{docID: id, onDoc: fn}
	return s.subscribe(ctx, sub, func() {
		sess, ok := s.docs[id]
		sub.push(func() { fn(sess, ok) })
	}), nil
}

// WatchQuery implements signaling.Store.
func (s *Store) WatchQuery(ctx context.Context, q signaling.Query, fn func([]call.Session)) (func(), error) {
	sub := &subscriber{query: &q, onQuery: fn}
	return s.subscribe(ctx, sub, func() {
		res := s.queryLocked(q)
		sub.push(func() { fn(res) })
	}), nil
}

func (s *Store) subscribe(ctx context.Context, sub *subscriber, initial func()) func() {
	sub.wake = make(chan struct{}, 1)
	sub.done = make(chan struct{})

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = sub
	initial()
	s.mu.Unlock()

	go sub.run()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			sub.cancelled.Store(true)
			close(sub.done)
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()
	return cancel
}

// notifyLocked queues callbacks for every subscription the change affects.
func (s *Store) notifyLocked(id string, old call.Session, had bool, cur call.Session, exists bool) {
	for _, sub := range s.subs {
		switch {
		case sub.query != nil:
			q := *sub.query
			if (had && q.Match(old)) || (exists && q.Match(cur)) {
				res := s.queryLocked(q)
				fn := sub.onQuery
				sub.push(func() { fn(res) })
			}
		case sub.docID == id:
			fn := sub.onDoc
			sub.push(func() { fn(cur, exists) })
		}
	}
}

func (s *Store) queryLocked(q signaling.Query) []call.Session {
	var res []call.Session
	for _, sess := range s.docs {
		if q.Match(sess) {
			res = append(res, sess)
		}
	}
	slices.SortFunc(res, func(a, b call.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return res
}

// subscriber delivers queued callbacks in order on its own goroutine. The
// queue is unbounded so a slow callback never loses a deletion.
type subscriber struct {
	docID   string
	query   *signaling.Query
	onDoc   func(call.Session, bool)
	onQuery func([]call.Session)

	mu        sync.Mutex
	queue     []func()
	wake      chan struct{}
	done      chan struct{}
	cancelled atomic.Bool
}

func (sub *subscriber) push(fn func()) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, fn)
	sub.mu.Unlock()
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *subscriber) run() {
	for {
		select {
		case <-sub.done:
			return
		case <-sub.wake:
		}
		for {
			sub.mu.Lock()
			if len(sub.queue) == 0 {
				sub.mu.Unlock()
				break
			}
			fn := sub.queue[0]
			sub.queue = sub.queue[1:]
			sub.mu.Unlock()

			if sub.cancelled.Load() {
				return
			}
			fn()
		}
	}
}
