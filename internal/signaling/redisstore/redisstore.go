// Package redisstore is a signaling store backed by Redis. Each session is a
// hash; every write is announced on a pub/sub channel so watchers can re-read.
package redisstore

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/signaling"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix     = "famcall:call:"
	indexKey      = "famcall:calls"
	changeChannel = "famcall:calls:changes"
)

// Config controls the redis client. Zero values get conservative defaults.
type Config struct {
	Addr     string
	Password string
	DB       int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PingTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.DialTimeout <= 0 {
		out.DialTimeout = 3 * time.Second
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = 2 * time.Second
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = 2 * time.Second
	}
	if out.PoolSize <= 0 {
		out.PoolSize = 10
	}
	if out.PingTimeout <= 0 {
		out.PingTimeout = 2 * time.Second
	}
	return out
}

// Open connects to Redis and validates connectivity via PING.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// updateScript writes fields only when the document still exists, so an
// update racing a delete cannot bring the document back.
var updateScript = redis.NewScript(`
-- KEYS[1] = session key
-- KEYS[2] = change channel
-- ARGV[1] = session id
-- ARGV[2..] = field/value pairs
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('PUBLISH', KEYS[2], ARGV[1])
return 1
`)

// Store implements signaling.Store on a redis client.
type Store struct {
	rdb    *redis.Client
	logger *zap.Logger
}

var _ signaling.Store = (*Store)(nil)

// New wraps rdb. The caller owns the client.
func New(rdb *redis.Client, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{rdb: rdb, logger: logger}
}

func key(id string) string { return keyPrefix + id }

// Create implements signaling.Store. createdAt comes from the server clock.
func (s *Store) Create(ctx context.Context, sess call.Session) (string, error) {
	now, err := s.rdb.Time(ctx).Result()
	if err != nil {
		return "", fmt.Errorf("server time: %w", err)
	}
	sess.ID = uuid.NewString()
	sess.CreatedAt = now

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key(sess.ID), encode(sess))
		p.SAdd(ctx, indexKey, sess.ID)
		p.Publish(ctx, changeChannel, sess.ID)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	return sess.ID, nil
}

// Update implements signaling.Store.
func (s *Store) Update(ctx context.Context, id string, p signaling.Patch) error {
	args := []any{id}
	if p.Status != "" {
		args = append(args, "status", string(p.Status))
	}
	if p.DocID != "" {
		args = append(args, "docId", p.DocID)
	}
	if len(args) == 1 {
		return nil
	}

	n, err := updateScript.Run(ctx, s.rdb, []string{key(id), changeChannel}, args...).Int()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return signaling.ErrNotFound
	}
	return nil
}

// Delete implements signaling.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key(id))
		p.SRem(ctx, indexKey, id)
		p.Publish(ctx, changeChannel, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Get implements signaling.Store.
func (s *Store) Get(ctx context.Context, id string) (call.Session, bool, error) {
	m, err := s.rdb.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return call.Session{}, false, fmt.Errorf("get session: %w", err)
	}
	if len(m) == 0 {
		return call.Session{}, false, nil
	}
	sess, err := decode(id, m)
	if err != nil {
		return call.Session{}, false, err
	}
	return sess, true, nil
}

func (s *Store) query(ctx context.Context, q signaling.Query) ([]call.Session, error) {
	ids, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}

	var res []call.Session
	for i, cmd := range cmds {
		m := cmd.Val()
		if len(m) == 0 {
			continue
		}
		sess, err := decode(ids[i], m)
		if err != nil {
			s.logger.Warn("skipping malformed session", zap.Error(err), zap.String("session_id", ids[i]))
			continue
		}
		if q.Match(sess) {
			res = append(res, sess)
		}
	}
	slices.SortFunc(res, func(a, b call.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		return 1
	})
	return res, nil
}

// WatchDocument implements signaling.Store.
func (s *Store) WatchDocument(ctx context.Context, id string, fn func(call.Session, bool)) (func(), error) {
	return s.watch(ctx, func(changed string) bool { return changed == id }, func(ctx context.Context) error {
		sess, ok, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		fn(sess, ok)
		return nil
	})
}

// WatchQuery implements signaling.Store. Notifications that leave the
// result unchanged are not delivered.
func (s *Store) WatchQuery(ctx context.Context, q signaling.Query, fn func([]call.Session)) (func(), error) {
	var last []call.Session
	first := true
	return s.watch(ctx, func(string) bool { return true }, func(ctx context.Context) error {
		res, err := s.query(ctx, q)
		if err != nil {
			return err
		}
		if !first && slices.Equal(res, last) {
			return nil
		}
		first = false
		last = res
		fn(res)
		return nil
	})
}

// watch subscribes to the change channel before reading the initial
// snapshot, so no write between the two is missed. refresh runs on a single
// goroutine per subscription.
func (s *Store) watch(ctx context.Context, relevant func(id string) bool, refresh func(context.Context) error) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	ps := s.rdb.Subscribe(ctx, changeChannel)
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		defer ps.Close()
		if err := refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("initial snapshot failed", zap.Error(err))
		}
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !relevant(msg.Payload) {
					continue
				}
				if err := refresh(ctx); err != nil && ctx.Err() == nil {
					s.logger.Warn("refresh after change failed", zap.Error(err), zap.String("session_id", msg.Payload))
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func encode(s call.Session) map[string]any {
	return map[string]any{
		"docId":       s.ID,
		"callerId":    s.CallerID,
		"receiverId":  s.ReceiverID,
		"channelName": s.ChannelName,
		"type":        string(s.Kind),
		"status":      string(s.Status),
		"createdAt":   strconv.FormatInt(s.CreatedAt.UnixMicro(), 10),
	}
}

func decode(id string, m map[string]string) (call.Session, error) {
	kind, err := call.ParseMediaKind(m["type"])
	if err != nil {
		return call.Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	var created time.Time
	if v := m["createdAt"]; v != "" {
		us, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return call.Session{}, fmt.Errorf("session %s: bad createdAt: %w", id, err)
		}
		created = time.UnixMicro(us)
	}
	return call.Session{
		ID:          id,
		CallerID:    m["callerId"],
		ReceiverID:  m["receiverId"],
		ChannelName: m["channelName"],
		Kind:        kind,
		Status:      call.Status(m["status"]),
		CreatedAt:   created,
	}, nil
}
