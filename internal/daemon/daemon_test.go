package daemon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/famcall/internal/account"
	"github.com/matheus3301/famcall/internal/config"
	"github.com/matheus3301/famcall/internal/deeplink"
	"github.com/matheus3301/famcall/internal/lock"
	"github.com/matheus3301/famcall/internal/tui/client"
	"go.uber.org/fx"
)

func TestDaemonLifecycle(t *testing.T) {
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "famcall-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	t.Setenv("FAMCALL_HOME", tmpDir)

	accountName := "test"
	socketPath := filepath.Join(tmpDir, "d.sock")

	cfg := config.Default()
	cfg.Identity = config.Identity{UserID: "u1", Name: "Ana"}
	cfg.Contacts = []config.Contact{{ID: "u2", Name: "Bruno"}}

	// A link opened while the daemon was down.
	if err := deeplink.NewPending(account.PendingLinkPath(accountName)).Save("gone"); err != nil {
		t.Fatal(err)
	}

	app := fx.New(
		Module(Params{AccountName: accountName, Config: cfg, SocketPath: socketPath}),
		fx.NopLogger,
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = app.Stop(context.Background())
		}
	}()

	// The lock is held while the daemon runs.
	_, err = lock.Acquire(account.Dir(accountName), lock.Owner{})
	var held *lock.HeldError
	if !errors.As(err, &held) {
		t.Errorf("Acquire() while running error = %v, want HeldError", err)
	} else if held.Owner.UserID != "u1" || held.Owner.Socket != socketPath {
		t.Errorf("lock owner = %+v, want u1 on %s", held.Owner, socketPath)
	}

	if _, err := os.Stat(account.PendingLinkPath(accountName)); !os.IsNotExist(err) {
		t.Errorf("pending link not consumed: %v", err)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("socket mode = %o, want 0600", info.Mode().Perm())
	}

	c, err := client.New(socketPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	call, err := c.GetCall(ctx)
	if err != nil {
		t.Fatalf("GetCall error = %v", err)
	}
	if call.Account != accountName || call.UserID != "u1" {
		t.Errorf("account/user = %s/%s, want %s/u1", call.Account, call.UserID, accountName)
	}
	if call.State != "NONE" {
		t.Errorf("state = %s, want NONE", call.State)
	}
	if call.Presence != "DISABLED" {
		t.Errorf("presence = %s, want DISABLED without a hub", call.Presence)
	}

	started, err := c.StartCall(ctx, "u2", "video")
	if err != nil {
		t.Fatalf("StartCall error = %v", err)
	}
	if started.Peer == nil || started.Peer.Name != "Bruno" {
		t.Errorf("peer = %+v, want configured contact", started.Peer)
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	stopped = true

	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket not removed on stop")
	}
	l, err := lock.Acquire(account.Dir(accountName), lock.Owner{})
	if err != nil {
		t.Fatalf("lock not released: %v", err)
	}
	_ = l.Release()
}
