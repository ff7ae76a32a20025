package media

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/famcall/internal/call"
)

type fakeTransport struct {
	mu       sync.Mutex
	ops      []string
	device   string
	devices  []Device
	joinGate chan struct{}
	joining  chan struct{}

	joinErr      error
	micErr       error
	camErr       error
	publishErr   error
	unpublishErr error
	leaveErr     error
	closeErr     error
	switchErr    error
}

type fakeHandle struct {
	t    *fakeTransport
	kind TrackKind
	dev  string
}

func (h *fakeHandle) Kind() TrackKind  { return h.kind }
func (h *fakeHandle) DeviceID() string { return h.dev }
func (h *fakeHandle) Close() error {
	h.t.record("close:" + string(h.kind))
	return h.t.closeErr
}

func (f *fakeTransport) record(op string) {
	f.mu.Lock()
	f.ops = append(f.ops, op)
	f.mu.Unlock()
}

func (f *fakeTransport) log() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.ops)
}

func (f *fakeTransport) count(op string) int {
	n := 0
	for _, o := range f.log() {
		if o == op {
			n++
		}
	}
	return n
}

func (f *fakeTransport) Join(ctx context.Context, channel, participant string) error {
	if f.joining != nil {
		close(f.joining)
	}
	if f.joinGate != nil {
		<-f.joinGate
	}
	f.record("join:" + channel + ":" + participant)
	return f.joinErr
}

func (f *fakeTransport) Leave(context.Context) error {
	f.record("leave")
	return f.leaveErr
}

func (f *fakeTransport) CreateMicrophone(context.Context) (Handle, error) {
	if f.micErr != nil {
		return nil, f.micErr
	}
	f.record("mic")
	return &fakeHandle{t: f, kind: TrackAudio, dev: "default"}, nil
}

func (f *fakeTransport) CreateCamera(context.Context) (Handle, error) {
	if f.camErr != nil {
		return nil, f.camErr
	}
	f.record("cam")
	return &fakeHandle{t: f, kind: TrackVideo, dev: f.device}, nil
}

func kinds(handles []Handle) string {
	var ks []string
	for _, h := range handles {
		ks = append(ks, string(h.Kind()))
	}
	return strings.Join(ks, "+")
}

func (f *fakeTransport) Publish(_ context.Context, handles ...Handle) error {
	f.record("publish:" + kinds(handles))
	return f.publishErr
}

func (f *fakeTransport) Unpublish(_ context.Context, handles ...Handle) error {
	f.record("unpublish:" + kinds(handles))
	return f.unpublishErr
}

func (f *fakeTransport) VideoDevices(context.Context) ([]Device, error) {
	return f.devices, nil
}

func (f *fakeTransport) SwitchDevice(_ context.Context, h Handle, id string) error {
	f.record("switch:" + id)
	if f.switchErr != nil {
		return f.switchErr
	}
	h.(*fakeHandle).dev = id
	return nil
}

func (f *fakeTransport) RemoteParticipants() []Participant {
	return []Participant{{ID: "u1", Audio: true, Video: true}}
}

func threeCameras() []Device {
	return []Device{{ID: "/dev/video0", Label: "front"}, {ID: "/dev/video2", Label: "back"}, {ID: "/dev/video4", Label: "usb"}}
}

func setup(t *testing.T, f *fakeTransport, kind call.MediaKind) (*call.Machine, *Controller) {
	t.Helper()
	c := NewController(f, "u2", nil, nil)
	c.interval = 10 * time.Millisecond
	m := call.NewMachine(nil)
	m.Observe(c.OnChange)
	m.Ring(call.Details{
		SessionID:   "s1",
		ChannelName: call.ChannelName("u1", "u2"),
		Kind:        kind,
		Peer:        call.Profile{ID: "u1", Name: "Ana"},
	})
	return m, c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func endAndWait(t *testing.T, m *call.Machine, c *Controller) {
	t.Helper()
	m.End()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("teardown did not finish: %v", err)
	}
}

func TestVideoCallLifecycle(t *testing.T) {
	f := &fakeTransport{device: "/dev/video0", devices: threeCameras()}
	m, c := setup(t, f, call.Video)

	if c.Snapshot().Joined {
		t.Fatal("should not be joined while ringing")
	}
	m.Accept()
	waitFor(t, "joined", func() bool { return c.Snapshot().Joined })

	want := []string{"join:call_u2_u1:u2", "mic", "cam", "publish:audio+video"}
	if got := f.log(); !slices.Equal(got, want) {
		t.Errorf("setup ops = %v, want %v", got, want)
	}
	snap := c.Snapshot()
	if snap.Cameras != 3 || snap.Camera != "front" || len(snap.Remote) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	endAndWait(t, m, c)
	want = append(want, "close:audio", "close:video", "unpublish:audio+video", "leave")
	if got := f.log(); !slices.Equal(got, want) {
		t.Errorf("ops = %v, want %v", got, want)
	}
	if c.Snapshot().Joined || c.Duration() != 0 {
		t.Error("state should reset after leaving")
	}
}

func TestJoinFailureNeverPublishes(t *testing.T) {
	f := &fakeTransport{joinErr: errors.New("auth failed")}
	m, c := setup(t, f, call.Video)
	m.Accept()

	waitFor(t, "join attempt", func() bool { return len(f.log()) > 0 })
	time.Sleep(30 * time.Millisecond)
	if c.Snapshot().Joined {
		t.Error("joined must stay false after a failed join")
	}
	if c.Duration() != 0 {
		t.Error("timer must not run while connecting")
	}

	endAndWait(t, m, c)
	for _, op := range f.log() {
		if strings.HasPrefix(op, "publish") || strings.HasPrefix(op, "unpublish") || op == "leave" {
			t.Errorf("unexpected op %q after failed join", op)
		}
	}
}

func TestTeardownRunsEveryStep(t *testing.T) {
	f := &fakeTransport{device: "/dev/video0"}
	m, c := setup(t, f, call.Video)
	m.Accept()
	waitFor(t, "joined", func() bool { return c.Snapshot().Joined })

	f.mu.Lock()
	f.closeErr = errors.New("busy")
	f.unpublishErr = errors.New("gone")
	f.leaveErr = errors.New("network")
	f.mu.Unlock()

	endAndWait(t, m, c)
	for _, op := range []string{"close:audio", "close:video", "unpublish:audio+video", "leave"} {
		if n := f.count(op); n != 1 {
			t.Errorf("%s ran %d times, want 1", op, n)
		}
	}
}

func TestCameraFailureFallsBackToAudio(t *testing.T) {
	f := &fakeTransport{camErr: errors.New("permission denied")}
	m, c := setup(t, f, call.Video)
	m.Accept()
	waitFor(t, "joined", func() bool { return c.Snapshot().Joined })

	if f.count("publish:audio") != 1 {
		t.Errorf("ops = %v, want audio-only publish", f.log())
	}
	if _, _, err := c.FlipCamera(context.Background()); !errors.Is(err, ErrNotJoined) {
		t.Errorf("FlipCamera without camera error = %v, want ErrNotJoined", err)
	}
	endAndWait(t, m, c)
}

func TestAudioCallSkipsCamera(t *testing.T) {
	f := &fakeTransport{}
	m, c := setup(t, f, call.Audio)
	m.Accept()
	waitFor(t, "joined", func() bool { return c.Snapshot().Joined })

	if f.count("cam") != 0 {
		t.Error("audio call must not acquire a camera")
	}
	endAndWait(t, m, c)
}

func TestHangupDuringJoinReleasesLateJoin(t *testing.T) {
	f := &fakeTransport{joinGate: make(chan struct{}), joining: make(chan struct{})}
	m, c := setup(t, f, call.Video)
	m.Accept()
	<-f.joining
	m.End()

	close(f.joinGate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	if n := f.count("leave"); n != 1 {
		t.Errorf("leave ran %d times, want 1 (ops %v)", n, f.log())
	}
	if f.count("mic") != 0 {
		t.Errorf("no device should be acquired after hangup, ops %v", f.log())
	}
}

func TestFlipCamera(t *testing.T) {
	f := &fakeTransport{device: "/dev/video2", devices: threeCameras()}
	m, c := setup(t, f, call.Video)
	m.Accept()
	waitFor(t, "joined", func() bool { return c.Snapshot().Joined })
	ctx := context.Background()

	for _, want := range []string{"usb", "front", "back"} {
		dev, ok, err := c.FlipCamera(ctx)
		if err != nil || !ok {
			t.Fatalf("FlipCamera() = %v, %v", ok, err)
		}
		if dev.Label != want {
			t.Errorf("switched to %q, want %q", dev.Label, want)
		}
	}

	f.mu.Lock()
	f.switchErr = errors.New("device busy")
	f.mu.Unlock()
	if _, _, err := c.FlipCamera(ctx); err == nil {
		t.Error("FlipCamera should report switch failure")
	}
	if got := c.Snapshot().Camera; got != "back" {
		t.Errorf("camera after failed switch = %q, want back", got)
	}
	endAndWait(t, m, c)
}

func TestFlipCameraSingleDeviceIsNoop(t *testing.T) {
	f := &fakeTransport{device: "/dev/video0", devices: threeCameras()[:1]}
	m, c := setup(t, f, call.Video)
	m.Accept()
	waitFor(t, "joined", func() bool { return c.Snapshot().Joined })

	if _, ok, err := c.FlipCamera(context.Background()); ok || err != nil {
		t.Errorf("FlipCamera() = %v, %v; want no-op", ok, err)
	}
	if f.count("switch:/dev/video0") != 0 {
		t.Error("no switch should be attempted")
	}
	endAndWait(t, m, c)
}

func TestDurationTicksWhileJoined(t *testing.T) {
	f := &fakeTransport{}
	m, c := setup(t, f, call.Audio)
	m.Accept()
	waitFor(t, "timer", func() bool { return c.Duration() >= 2*time.Second })
	endAndWait(t, m, c)
	if c.Duration() != 0 {
		t.Errorf("duration after leave = %v, want 0", c.Duration())
	}
}

func TestNextCallWaitsForPreviousTeardown(t *testing.T) {
	f := &fakeTransport{}
	m, c := setup(t, f, call.Audio)
	m.Accept()
	waitFor(t, "joined", func() bool { return c.Snapshot().Joined })
	m.End()

	m.Ring(call.Details{SessionID: "s2", ChannelName: "call_u3_u2", Kind: call.Audio, Peer: call.Profile{ID: "u3"}})
	m.Accept()
	waitFor(t, "second join", func() bool { return c.Snapshot().Joined })

	ops := f.log()
	leave := slices.Index(ops, "leave")
	second := slices.Index(ops, "join:call_u3_u2:u2")
	if leave < 0 || second < 0 || leave > second {
		t.Errorf("ops = %v, want first leave before second join", ops)
	}
	endAndWait(t, m, c)
}
