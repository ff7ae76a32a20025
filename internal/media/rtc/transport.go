// Package rtc implements media.Transport on Pion WebRTC. Each joined channel
// is one PeerConnection negotiated against an SDP endpoint that accepts an
// offer by POST and answers with application/sdp.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/famcall/internal/media"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// Config configures the transport.
type Config struct {
	// Endpoint is the base URL; the channel name is appended as a path element.
	Endpoint   string
	AppID      string
	Token      string
	ICEServers []string
	// Capture opens the local camera and microphone. When nil the transport
	// only receives.
	Capture Capturer
}

// Transport is a media.Transport backed by a single PeerConnection.
type Transport struct {
	cfg     Config
	api     *webrtc.API
	capture Capturer
	client  *http.Client
	logger  *zap.Logger

	mu          sync.Mutex
	pc          *webrtc.PeerConnection
	channel     string
	participant string
	resource    string
	senders     map[*track]*webrtc.RTPSender
	remote      map[string]*media.Participant
}

var _ media.Transport = (*Transport)(nil)

// New builds the WebRTC API shared by every session of this transport. The
// capturer's encoders are registered when one is configured, the default
// codecs otherwise.
func New(cfg Config, logger *zap.Logger) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	mediaEngine := &webrtc.MediaEngine{}
	register := mediaEngine.RegisterDefaultCodecs
	if cfg.Capture != nil {
		register = func() error { return cfg.Capture.RegisterCodecs(mediaEngine) }
	}
	if err := register(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	return &Transport{
		cfg:     cfg,
		capture: cfg.Capture,
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(interceptorRegistry),
			webrtc.WithSettingEngine(se),
		),
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}, nil
}

// Join implements media.Transport.
func (t *Transport) Join(ctx context.Context, channel, participant string) error {
	t.mu.Lock()
	if t.pc != nil {
		t.mu.Unlock()
		return fmt.Errorf("already joined %s", t.channel)
	}
	t.mu.Unlock()

	var servers []webrtc.ICEServer
	if len(t.cfg.ICEServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: t.cfg.ICEServers}}
	}
	pc, err := t.api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return fmt.Errorf("new peer connection: %w", err)
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	pc.OnTrack(t.onTrack)
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.logger.Info("peer connection state", zap.String("channel", channel), zap.String("state", s.String()))
	})

	t.mu.Lock()
	t.pc, t.channel, t.participant = pc, channel, participant
	t.senders = make(map[*track]*webrtc.RTPSender)
	t.remote = make(map[string]*media.Participant)
	t.mu.Unlock()

	if err := t.negotiate(ctx); err != nil {
		t.reset()
		return err
	}
	t.logger.Info("joined channel", zap.String("channel", channel), zap.String("participant", participant))
	return nil
}

// Leave implements media.Transport.
func (t *Transport) Leave(ctx context.Context) error {
	t.mu.Lock()
	resource := t.resource
	t.mu.Unlock()

	var delErr error
	if resource != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, resource, nil)
		if err == nil {
			t.authorize(req)
			var resp *http.Response
			if resp, err = t.client.Do(req); err == nil {
				_ = resp.Body.Close()
			}
		}
		delErr = err
	}

	if err := t.reset(); err != nil {
		return err
	}
	if delErr != nil {
		return fmt.Errorf("delete session resource: %w", delErr)
	}
	return nil
}

func (t *Transport) reset() error {
	t.mu.Lock()
	pc := t.pc
	t.pc, t.channel, t.resource = nil, "", ""
	t.senders, t.remote = nil, nil
	t.mu.Unlock()
	if pc == nil {
		return media.ErrNotJoined
	}
	if err := pc.Close(); err != nil {
		return fmt.Errorf("close peer connection: %w", err)
	}
	return nil
}

// Publish implements media.Transport.
func (t *Transport) Publish(ctx context.Context, handles ...media.Handle) error {
	t.mu.Lock()
	pc := t.pc
	if pc == nil {
		t.mu.Unlock()
		return media.ErrNotJoined
	}
	for _, h := range handles {
		tr, ok := h.(*track)
		if !ok {
			t.mu.Unlock()
			return fmt.Errorf("foreign handle %T", h)
		}
		if _, dup := t.senders[tr]; dup {
			continue
		}
		sender, err := pc.AddTrack(tr.local())
		if err != nil {
			t.mu.Unlock()
			return fmt.Errorf("add %s track: %w", tr.kind, err)
		}
		t.senders[tr] = sender
	}
	t.mu.Unlock()
	return t.negotiate(ctx)
}

// Unpublish implements media.Transport.
func (t *Transport) Unpublish(ctx context.Context, handles ...media.Handle) error {
	t.mu.Lock()
	pc := t.pc
	if pc == nil {
		t.mu.Unlock()
		return media.ErrNotJoined
	}
	var errs []error
	for _, h := range handles {
		tr, ok := h.(*track)
		if !ok {
			continue
		}
		sender, ok := t.senders[tr]
		if !ok {
			continue
		}
		delete(t.senders, tr)
		if err := pc.RemoveTrack(sender); err != nil {
			errs = append(errs, fmt.Errorf("remove %s track: %w", tr.kind, err))
		}
	}
	t.mu.Unlock()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return t.negotiate(ctx)
}

// RemoteParticipants implements media.Transport.
func (t *Transport) RemoteParticipants() []media.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]media.Participant, 0, len(t.remote))
	for _, p := range t.remote {
		out = append(out, *p)
	}
	return out
}

func (t *Transport) onTrack(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	id := remote.StreamID()
	t.mu.Lock()
	if t.remote == nil {
		t.mu.Unlock()
		return
	}
	p, ok := t.remote[id]
	if !ok {
		p = &media.Participant{ID: id}
		t.remote[id] = p
	}
	switch remote.Kind() {
	case webrtc.RTPCodecTypeAudio:
		p.Audio = true
	case webrtc.RTPCodecTypeVideo:
		p.Video = true
	}
	t.mu.Unlock()
	t.logger.Info("remote track", zap.String("participant", id), zap.String("kind", remote.Kind().String()))

	// Drain RTP so the interceptors keep running; rendering is out of scope.
	buf := make([]byte, 1500)
	for {
		if _, _, err := remote.Read(buf); err != nil {
			return
		}
	}
}

// negotiate creates an offer, waits for ICE gathering and exchanges it with
// the endpoint.
func (t *Transport) negotiate(ctx context.Context) error {
	t.mu.Lock()
	pc, channel, participant, resource := t.pc, t.channel, t.participant, t.resource
	t.mu.Unlock()
	if pc == nil {
		return media.ErrNotJoined
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	target := resource
	if target == "" {
		target = strings.TrimRight(t.cfg.Endpoint, "/") + "/" + channel
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(pc.LocalDescription().SDP))
	if err != nil {
		return fmt.Errorf("build offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("X-Participant", participant)
	t.authorize(req)

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("offer rejected: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if loc := resp.Header.Get("Location"); loc != "" && resource == "" {
		if u, err := resp.Request.URL.Parse(loc); err == nil {
			t.mu.Lock()
			t.resource = u.String()
			t.mu.Unlock()
		}
	}
	return nil
}

func (t *Transport) authorize(req *http.Request) {
	if t.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.cfg.Token)
	}
	if t.cfg.AppID != "" {
		req.Header.Set("X-App-Id", t.cfg.AppID)
	}
}
