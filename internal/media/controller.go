// Package media keeps the local media session in step with the call state:
// it joins and publishes when a call becomes ACTIVE and releases everything
// when it stops being ACTIVE.
package media

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/famcall/internal/bus"
	"github.com/matheus3301/famcall/internal/call"
	"go.uber.org/zap"
)

const teardownTimeout = 10 * time.Second

// Snapshot is the media state shown alongside the call.
type Snapshot struct {
	SessionID string        `json:"sessionId,omitempty"`
	Joined    bool          `json:"joined"`
	Duration  time.Duration `json:"duration"`
	Cameras   int           `json:"cameras"`
	Camera    string        `json:"camera,omitempty"`
	Remote    []Participant `json:"remote,omitempty"`
}

// Controller drives a Transport from call state changes. Register
// OnChange with the call machine.
type Controller struct {
	transport Transport
	self      string
	bus       *bus.Bus
	logger    *zap.Logger
	interval  time.Duration

	mu   sync.Mutex
	cur  *guard
	idle chan struct{}
}

// guard owns the resources acquired for one ACTIVE session. Once released,
// any step that completes late gives back what it produced.
type guard struct {
	sessionID string
	channel   string
	kind      call.MediaKind

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	released  bool
	inChannel bool
	joined    bool
	mic       Handle
	cam       Handle
	published []Handle
	devices   []Device
	deviceIdx int
	seconds   int
}

// NewController creates a controller publishing as participant self.
func NewController(t Transport, self string, b *bus.Bus, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	idle := make(chan struct{})
	close(idle)
	return &Controller{
		transport: t,
		self:      self,
		bus:       b,
		logger:    logger,
		interval:  time.Second,
		idle:      idle,
	}
}

// OnChange reacts to call transitions. It never blocks on the transport.
func (c *Controller) OnChange(ch call.Change) {
	switch {
	case ch.EnteredActive():
		if act, ok := ch.To.(call.Active); ok {
			c.activate(act)
		}
	case ch.LeftActive():
		c.deactivate()
	}
}

func (c *Controller) activate(act call.Active) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur != nil {
		c.logger.Warn("media already active", zap.String("session_id", c.cur.sessionID))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &guard{
		sessionID: act.SessionID,
		channel:   act.ChannelName,
		kind:      act.Kind,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.cur = g
	go c.setup(g, c.idle)
}

func (c *Controller) deactivate() {
	c.mu.Lock()
	g := c.cur
	if g == nil {
		c.mu.Unlock()
		return
	}
	c.cur = nil
	idle := make(chan struct{})
	c.idle = idle
	c.mu.Unlock()

	go func() {
		defer close(idle)
		if err := c.teardown(g); err != nil {
			c.logger.Warn("media teardown finished with errors", zap.Error(err), zap.String("session_id", g.sessionID))
		}
		<-g.done
	}()
}

// claim runs fn under the lock unless g has been released.
func (c *Controller) claim(g *guard, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g.released {
		return false
	}
	fn()
	return true
}

func (c *Controller) setup(g *guard, prev <-chan struct{}) {
	defer close(g.done)
	log := c.logger.With(zap.String("session_id", g.sessionID), zap.String("channel", g.channel))

	select {
	case <-prev:
	case <-g.ctx.Done():
		return
	}

	if err := c.transport.Join(g.ctx, g.channel, c.self); err != nil {
		log.Error("failed to join media channel", zap.Error(err))
		return
	}
	if !c.claim(g, func() { g.inChannel = true }) {
		c.release("leave", log, func() error { return c.transport.Leave(context.Background()) })
		return
	}

	var handles []Handle
	mic, err := c.transport.CreateMicrophone(g.ctx)
	switch {
	case err != nil:
		log.Error("failed to acquire microphone", zap.Error(err))
	case !c.claim(g, func() { g.mic = mic }):
		c.release("close_microphone", log, mic.Close)
		return
	default:
		handles = append(handles, mic)
	}

	if g.kind == call.Video {
		cam, err := c.transport.CreateCamera(g.ctx)
		switch {
		case err != nil:
			log.Error("failed to acquire camera, continuing with audio only", zap.Error(err))
		case !c.claim(g, func() { g.cam = cam }):
			c.release("close_camera", log, cam.Close)
			return
		default:
			handles = append(handles, cam)
			c.loadDevices(g, cam, log)
		}
	}

	if len(handles) > 0 {
		if err := c.transport.Publish(g.ctx, handles...); err != nil {
			log.Error("failed to publish tracks", zap.Error(err))
			return
		}
		if !c.claim(g, func() { g.published = handles }) {
			c.release("unpublish", log, func() error { return c.transport.Unpublish(context.Background(), handles...) })
			return
		}
	}

	if !c.claim(g, func() { g.joined = true }) {
		return
	}
	log.Info("media joined", zap.Int("tracks", len(handles)))
	c.publish("media.joined", g.sessionID)
	go c.tick(g)
}

func (c *Controller) loadDevices(g *guard, cam Handle, log *zap.Logger) {
	devices, err := c.transport.VideoDevices(g.ctx)
	if err != nil {
		log.Warn("failed to enumerate cameras", zap.Error(err))
		return
	}
	idx := max(slices.IndexFunc(devices, func(d Device) bool { return d.ID == cam.DeviceID() }), 0)
	c.claim(g, func() {
		g.devices = devices
		g.deviceIdx = idx
	})
}

// tick counts seconds while g stays joined.
func (c *Controller) tick(g *guard) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-g.ctx.Done():
			return
		case <-t.C:
			ok := c.claim(g, func() {
				if g.joined {
					g.seconds++
				}
			})
			if !ok {
				return
			}
			c.publish("media.tick", g.sessionID)
		}
	}
}

// teardown releases everything g owns. Every step runs even when an earlier
// one fails.
func (c *Controller) teardown(g *guard) error {
	c.mu.Lock()
	g.released = true
	g.joined = false
	mic, cam, published, inChannel := g.mic, g.cam, g.published, g.inChannel
	g.mic, g.cam, g.published, g.inChannel = nil, nil, nil, false
	g.seconds = 0
	c.mu.Unlock()
	g.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()
	log := c.logger.With(zap.String("session_id", g.sessionID))

	var errs []error
	if mic != nil {
		errs = append(errs, c.release("close_microphone", log, mic.Close))
	}
	if cam != nil {
		errs = append(errs, c.release("close_camera", log, cam.Close))
	}
	if len(published) > 0 {
		errs = append(errs, c.release("unpublish", log, func() error { return c.transport.Unpublish(ctx, published...) }))
	}
	if inChannel {
		errs = append(errs, c.release("leave", log, func() error { return c.transport.Leave(ctx) }))
	}

	log.Info("media released")
	c.publish("media.left", g.sessionID)
	return errors.Join(errs...)
}

// release runs one cleanup step, logging its failure.
func (c *Controller) release(step string, log *zap.Logger, fn func() error) error {
	if err := fn(); err != nil {
		log.Warn("media cleanup step failed", zap.String("step", step), zap.Error(err))
		return fmt.Errorf("%s: %w", step, err)
	}
	return nil
}

// FlipCamera switches the camera to the next capture device, wrapping
// around. It reports false when there is nothing to switch to. On failure
// the camera stays on its current device.
func (c *Controller) FlipCamera(ctx context.Context) (Device, bool, error) {
	c.mu.Lock()
	g := c.cur
	if g == nil || !g.joined || g.kind != call.Video || g.cam == nil {
		c.mu.Unlock()
		return Device{}, false, ErrNotJoined
	}
	if len(g.devices) < 2 {
		c.mu.Unlock()
		return Device{}, false, nil
	}
	next := (g.deviceIdx + 1) % len(g.devices)
	dev, cam := g.devices[next], g.cam
	c.mu.Unlock()

	if err := c.transport.SwitchDevice(ctx, cam, dev.ID); err != nil {
		c.logger.Error("failed to switch camera", zap.Error(err), zap.String("device", dev.ID))
		return Device{}, false, fmt.Errorf("switch camera: %w", err)
	}

	c.claim(g, func() { g.deviceIdx = next })
	c.logger.Info("camera switched", zap.String("device", dev.ID), zap.String("label", dev.Label))
	c.publish("media.camera_switched", g.sessionID)
	return dev, true, nil
}

// Duration returns how long the current call has been joined.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cur == nil || !c.cur.joined {
		return 0
	}
	return time.Duration(c.cur.seconds) * time.Second
}

// Snapshot returns the current media state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	g := c.cur
	if g == nil {
		c.mu.Unlock()
		return Snapshot{}
	}
	s := Snapshot{
		SessionID: g.sessionID,
		Joined:    g.joined,
		Duration:  time.Duration(g.seconds) * time.Second,
		Cameras:   len(g.devices),
	}
	if g.joined && len(g.devices) > 0 {
		s.Camera = g.devices[g.deviceIdx].Label
	}
	joined := g.joined
	c.mu.Unlock()

	if joined {
		s.Remote = c.transport.RemoteParticipants()
	}
	return s
}

// Wait blocks until any previous session has been fully released.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) publish(kind, sessionID string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   sessionID,
	})
}
