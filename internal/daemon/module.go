package daemon

import (
	"context"
	"time"

	"github.com/matheus3301/famcall/internal/account"
	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/bus"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/config"
	"github.com/matheus3301/famcall/internal/deeplink"
	"github.com/matheus3301/famcall/internal/lock"
	"github.com/matheus3301/famcall/internal/logging"
	"github.com/matheus3301/famcall/internal/media"
	"github.com/matheus3301/famcall/internal/media/rtc"
	"github.com/matheus3301/famcall/internal/push"
	"github.com/matheus3301/famcall/internal/signaling"
	"github.com/matheus3301/famcall/internal/signaling/memstore"
	"github.com/matheus3301/famcall/internal/signaling/redisstore"
	"github.com/matheus3301/famcall/internal/status"
	"github.com/matheus3301/famcall/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const stopTimeout = 10 * time.Second

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	AccountName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
	// Capture builds the local camera and microphone capturer. Nil leaves
	// the daemon receive-only.
	Capture func(*zap.Logger) (rtc.Capturer, error)
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideCallMachine,
			providePresenceStatus,
			provideLock,
			provideStore,
			provideSignalingStore,
			provideReconciler,
			provideTransport,
			provideMediaController,
			providePending,
			provideCallService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(account.LogPath(p.AccountName), p.AccountName, p.Config.Identity.UserID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideCallMachine(b *bus.Bus) *call.Machine {
	return call.NewMachine(b)
}

func providePresenceStatus(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func (p Params) socketPath() string {
	if p.SocketPath != "" {
		return p.SocketPath
	}
	return account.SocketPath(p.AccountName)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := account.EnsureDir(p.AccountName); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.AccountName))
	l, err := lock.Acquire(account.Dir(p.AccountName), lock.Owner{
		UserID: p.Config.Identity.UserID,
		Socket: p.socketPath(),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

// provideStore opens the chat store and seeds the profile directory from
// the configured identity and contacts. It depends on the lock so that a
// second daemon never touches the database.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := account.DBPath(p.AccountName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}

	ctx := context.Background()
	id := p.Config.Identity
	profiles := []call.Profile{{ID: id.UserID, Name: id.Name, Avatar: id.Avatar}}
	for _, c := range p.Config.Contacts {
		profiles = append(profiles, call.Profile{ID: c.ID, Name: c.Name, Avatar: c.Avatar})
	}
	for _, pr := range profiles {
		if err := db.UpsertProfile(ctx, pr); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	count, err := db.MessageCount(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", dbPath), zap.Int("profiles", len(profiles)), zap.Int64("messages", count))
	return db, nil
}

func provideSignalingStore(lc fx.Lifecycle, p Params, logger *zap.Logger) (signaling.Store, error) {
	sc := p.Config.Signaling
	if sc.Backend != config.BackendRedis {
		logger.Info("signaling store: memory")
		return memstore.New(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rdb, err := redisstore.Open(ctx, redisstore.Config{Addr: sc.RedisAddr, Password: sc.RedisPassword, DB: sc.RedisDB})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return rdb.Close() },
	})
	logger.Info("signaling store: redis", zap.String("addr", sc.RedisAddr))
	return redisstore.New(rdb, logger.Named("redis")), nil
}

func provideReconciler(p Params, st signaling.Store, m *call.Machine, db *store.DB, logger *zap.Logger) *signaling.Reconciler {
	return signaling.NewReconciler(p.Config.Identity.UserID, st, m, db, db, logger.Named("signaling"))
}

func provideTransport(p Params, logger *zap.Logger) (media.Transport, error) {
	mc := p.Config.Media
	var capture rtc.Capturer
	if p.Capture != nil {
		c, err := p.Capture(logger.Named("capture"))
		if err != nil {
			logger.Warn("capture unavailable, media is receive-only", zap.Error(err))
		} else {
			capture = c
		}
	} else {
		logger.Info("no capture devices on this platform, media is receive-only")
	}
	return rtc.New(rtc.Config{
		Endpoint:   mc.Endpoint,
		AppID:      mc.AppID,
		Token:      mc.Token,
		ICEServers: mc.ICEServers,
		Capture:    capture,
	}, logger.Named("rtc"))
}

func provideMediaController(p Params, t media.Transport, m *call.Machine, b *bus.Bus, logger *zap.Logger) *media.Controller {
	c := media.NewController(t, p.Config.Identity.UserID, b, logger.Named("media"))
	m.Observe(c.OnChange)
	return c
}

func providePending(p Params) *deeplink.Pending {
	return deeplink.NewPending(account.PendingLinkPath(p.AccountName))
}

func provideCallService(p Params, m *call.Machine, r *signaling.Reconciler, c *media.Controller, db *store.DB, b *bus.Bus, st *status.Machine, logger *zap.Logger) *api.CallService {
	svc := api.NewCallService(p.AccountName, p.Config.Identity.UserID, m, r, c, db, b, logger.Named("api"))
	svc.SetPresence(st)
	if pc := p.Config.Push; pc.HubURL != "" && pc.Token != "" {
		svc.SetPeers(push.NewPeerLookup(pc.HubURL, pc.Token))
	}
	return svc
}

// openPendingLink rings the call saved by a deep link opened while the
// daemon was not running.
func openPendingLink(ctx context.Context, pending *deeplink.Pending, r *signaling.Reconciler, logger *zap.Logger) {
	id, ok, err := pending.Consume()
	if err != nil {
		logger.Warn("failed to read pending link", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	in, rang, err := r.Bootstrap(ctx, id)
	if err != nil {
		logger.Warn("pending link rejected", zap.String("session_id", id), zap.Error(err))
		return
	}
	logger.Info("pending link opened", zap.String("session_id", id), zap.Bool("ringing", rang), zap.String("peer", in.Peer.ID))
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, db *store.DB, r *signaling.Reconciler, mc *media.Controller, pending *deeplink.Pending, st *status.Machine, logger *zap.Logger) {
	runCtx, cancel := context.WithCancel(context.Background())
	presenceDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := r.Start(runCtx); err != nil {
				return err
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if pc := p.Config.Push; pc.HubURL != "" && pc.Token != "" {
				presence := push.NewPresence(pc.HubURL, pc.Token, logger.Named("presence"))
				presence.SetStatus(st)
				go func() {
					defer close(presenceDone)
					presence.Run(runCtx)
				}()
			} else {
				close(presenceDone)
				logger.Info("push hub not configured, presence disabled")
			}

			openPendingLink(runCtx, pending, r, logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-presenceDone

			endCtx, endCancel := context.WithTimeout(ctx, stopTimeout)
			defer endCancel()
			if prev, ended := r.EndCall(endCtx); ended {
				logger.Info("call ended on shutdown", zap.Stringer("state", prev.State()))
			}
			if err := mc.Wait(endCtx); err != nil {
				logger.Warn("media teardown did not finish", zap.Error(err))
			}
			r.Stop()

			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
