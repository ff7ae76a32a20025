package push

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/famcall/internal/status"
	"go.uber.org/zap"
)

// Dial opens a hub connection in the given mode. hubURL may use the http,
// https, ws or wss scheme.
func Dial(ctx context.Context, hubURL, token, mode string) (*websocket.Conn, error) {
	u, err := url.Parse(strings.TrimRight(hubURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path += "/v1/ws"
	u.RawQuery = url.Values{"mode": {mode}}.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial hub: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return ws, nil
}

// closeOnDone closes ws when ctx ends. The returned function releases the
// watcher.
func closeOnDone(ctx context.Context, ws *websocket.Conn) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// Listen delivers each notification for the token's user to fn until ctx
// ends or the connection fails.
func Listen(ctx context.Context, hubURL, token string, fn func(Notification)) error {
	ws, err := Dial(ctx, hubURL, token, ModeNotify)
	if err != nil {
		return err
	}
	defer ws.Close()
	defer closeOnDone(ctx, ws)()

	for {
		var n Notification
		if err := ws.ReadJSON(&n); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read notification: %w", err)
		}
		fn(n)
	}
}

// Presence keeps a watch connection open so the hub knows the user is at a
// client and suppresses ring notifications.
type Presence struct {
	hubURL string
	token  string
	logger *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
	status     *status.Machine
}

func NewPresence(hubURL, token string, logger *zap.Logger) *Presence {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Presence{
		hubURL:     hubURL,
		token:      token,
		logger:     logger,
		minBackoff: time.Second,
		maxBackoff: time.Minute,
	}
}

// SetStatus makes Run report its connection state to m.
func (p *Presence) SetStatus(m *status.Machine) {
	p.status = m
}

func (p *Presence) transition(to status.State) {
	if p.status == nil {
		return
	}
	if err := p.status.Transition(to); err != nil {
		p.logger.Debug("presence status", zap.Error(err))
	}
}

// Run holds the connection until ctx ends, reconnecting with exponential
// backoff.
func (p *Presence) Run(ctx context.Context) {
	defer p.transition(status.Stopped)
	backoff := p.minBackoff
	for {
		p.transition(status.Connecting)
		start := time.Now()
		err := p.hold(ctx)
		if ctx.Err() != nil {
			return
		}
		p.transition(status.Reconnecting)
		if time.Since(start) > p.maxBackoff {
			backoff = p.minBackoff
		}
		p.logger.Warn("presence connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, p.maxBackoff)
	}
}

func (p *Presence) hold(ctx context.Context) error {
	ws, err := Dial(ctx, p.hubURL, p.token, ModeWatch)
	if err != nil {
		return err
	}
	defer ws.Close()
	defer closeOnDone(ctx, ws)()
	p.transition(status.Online)
	p.logger.Info("presence connected")

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return err
		}
	}
}
