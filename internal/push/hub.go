package push

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection modes.
const (
	ModeWatch  = "watch"
	ModeNotify = "notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8

	maxPresenceIDs = 100
)

// PeerPresence is whether a user has any device connected to the hub, and
// when the last one went away.
type PeerPresence struct {
	ID       string `json:"id"`
	Online   bool   `json:"online"`
	LastSeen int64  `json:"last_seen,omitempty"` // unix ms
}

type conn struct {
	ws   *websocket.Conn
	send chan Notification
}

// Hub tracks which users have a client watching and routes notifications to
// their notify connections.
type Hub struct {
	tokens   *Tokens
	logger   *zap.Logger
	upgrader websocket.Upgrader

	now func() time.Time

	mu       sync.Mutex
	watchers map[string]int
	sinks    map[string]map[*conn]struct{}
	lastSeen map[string]time.Time
}

func NewHub(tokens *Tokens, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now:      time.Now,
		watchers: make(map[string]int),
		sinks:    make(map[string]map[*conn]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// Handler returns the hub's HTTP surface.
func (h *Hub) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	v1 := r.Group("/v1", RequireToken(h.tokens))
	v1.GET("/ws", h.serveWS)
	v1.GET("/presence", h.servePresence)
	return r
}

// RequireToken authenticates a device token from the Authorization header
// or the token query parameter and stores the user id under "user_id".
func RequireToken(tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if h := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(h, "Bearer ") {
			raw = strings.TrimPrefix(h, "Bearer ")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		userID, err := tokens.Verify(raw, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

func (h *Hub) serveWS(c *gin.Context) {
	mode := c.DefaultQuery("mode", ModeNotify)
	if mode != ModeWatch && mode != ModeNotify {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "mode must be watch or notify"})
		return
	}
	userID := c.GetString("user_id")

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	cn := &conn{ws: ws, send: make(chan Notification, sendBuffer)}
	log := h.logger.With(zap.String("user", userID), zap.String("mode", mode))

	h.register(userID, mode, cn)
	log.Info("device connected")

	done := make(chan struct{})
	go h.writeLoop(cn, done)
	readLoop(ws)

	h.unregister(userID, mode, cn)
	close(done)
	_ = ws.Close()
	log.Info("device disconnected")
}

func (h *Hub) register(userID, mode string, cn *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if mode == ModeWatch {
		h.watchers[userID]++
		return
	}
	set, ok := h.sinks[userID]
	if !ok {
		set = make(map[*conn]struct{})
		h.sinks[userID] = set
	}
	set[cn] = struct{}{}
}

func (h *Hub) unregister(userID, mode string, cn *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastSeen[userID] = h.now()
	if mode == ModeWatch {
		if h.watchers[userID]--; h.watchers[userID] <= 0 {
			delete(h.watchers, userID)
		}
		return
	}
	if set, ok := h.sinks[userID]; ok {
		delete(set, cn)
		if len(set) == 0 {
			delete(h.sinks, userID)
		}
	}
}

// Watching implements Sink.
func (h *Hub) Watching(userID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.watchers[userID] > 0
}

// Lookup reports the presence of each id, in order.
func (h *Hub) Lookup(ids []string) []PeerPresence {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]PeerPresence, 0, len(ids))
	for _, id := range ids {
		p := PeerPresence{ID: id, Online: h.watchers[id] > 0 || len(h.sinks[id]) > 0}
		if t, ok := h.lastSeen[id]; ok && !p.Online {
			p.LastSeen = t.UnixMilli()
		}
		out = append(out, p)
	}
	return out
}

// servePresence answers GET /v1/presence?ids=a,b.
func (h *Hub) servePresence(c *gin.Context) {
	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || len(ids) > maxPresenceIDs {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ids must list 1 to 100 users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": h.Lookup(ids)})
}

// Deliver implements Sink. A device whose buffer is full misses n.
func (h *Hub) Deliver(userID string, n Notification) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for cn := range h.sinks[userID] {
		select {
		case cn.send <- n:
			delivered++
		default:
			h.logger.Warn("device buffer full, notification dropped", zap.String("user", userID))
		}
	}
	return delivered
}

func readLoop(ws *websocket.Conn) {
	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(cn *conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case n := <-cn.send:
			_ = cn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cn.ws.WriteJSON(n); err != nil {
				h.logger.Warn("notification write failed", zap.Error(err))
				_ = cn.ws.Close()
				return
			}
		case <-ticker.C:
			if err := cn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				_ = cn.ws.Close()
				return
			}
		}
	}
}
