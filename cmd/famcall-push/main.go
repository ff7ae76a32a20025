package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/famcall/internal/account"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/config"
	"github.com/matheus3301/famcall/internal/logging"
	"github.com/matheus3301/famcall/internal/push"
	"github.com/matheus3301/famcall/internal/signaling/redisstore"
	"go.uber.org/zap"
)

func main() {
	debug := flag.Bool("debug", false, "run gin in debug mode")
	flag.Parse()

	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Read(account.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Push.Secret == "" || cfg.Signaling.Backend != config.BackendRedis {
		fmt.Fprintln(os.Stderr, "error: famcall-push needs push.secret and the redis signaling backend")
		os.Exit(1)
	}

	log, err := logging.NewService(account.HubLogPath(), "push")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if !*debug {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := push.NewTokens(cfg.Push.Secret, 0)
	if err != nil {
		log.Error("token init failed", zap.Error(err))
		os.Exit(1)
	}

	sc := cfg.Signaling
	rdb, err := redisstore.Open(rootCtx, redisstore.Config{Addr: sc.RedisAddr, Password: sc.RedisPassword, DB: sc.RedisDB})
	if err != nil {
		log.Error("redis init failed", zap.Error(err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	directory := push.Directory{}
	for _, c := range cfg.Contacts {
		directory[c.ID] = call.Profile{ID: c.ID, Name: c.Name, Avatar: c.Avatar}
	}

	hub := push.NewHub(tokens, log.Named("hub"))
	notifier := push.NewNotifier(redisstore.New(rdb, log.Named("redis")), directory, hub, log.Named("notifier"))
	if err := notifier.Start(rootCtx); err != nil {
		log.Error("notifier start failed", zap.Error(err))
		os.Exit(1)
	}
	defer notifier.Stop()

	srv := &http.Server{
		Addr:              cfg.Push.ListenAddr,
		Handler:           hub.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("push hub listening", zap.String("addr", srv.Addr), zap.Int("contacts", len(directory)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
	}
}
