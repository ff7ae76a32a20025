package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/famcall/internal/media"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// ErrNoCapture is returned when the transport has no capturer and can only
// receive.
var ErrNoCapture = errors.New("no capture devices available, receive-only")

// Source is an open capture device feeding a local track.
type Source struct {
	Track    webrtc.TrackLocal
	DeviceID string
	Close    func() error
}

// Capturer opens local capture devices and encodes them for the peer
// connection.
type Capturer interface {
	// RegisterCodecs adds the codecs the capturer encodes to m.
	RegisterCodecs(m *webrtc.MediaEngine) error
	Devices(kind media.TrackKind) []media.Device
	// Open starts capturing from deviceID, or from the first device of kind
	// when deviceID is empty.
	Open(ctx context.Context, kind media.TrackKind, deviceID string) (*Source, error)
}

// track is a local capture track handed out as a media.Handle.
type track struct {
	kind media.TrackKind

	mu     sync.Mutex
	src    *Source
	closed bool
}

func (t *track) Kind() media.TrackKind { return t.kind }

func (t *track) DeviceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.src.DeviceID
}

func (t *track) local() webrtc.TrackLocal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.src.Track
}

// Close stops the capture device.
func (t *track) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("%s track already closed", t.kind)
	}
	t.closed = true
	src := t.src
	t.mu.Unlock()
	if src.Close == nil {
		return nil
	}
	if err := src.Close(); err != nil {
		return fmt.Errorf("close %s %s: %w", t.kind, src.DeviceID, err)
	}
	return nil
}

// replace swaps in src and returns the source it replaced.
func (t *track) replace(src *Source) (*Source, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, fmt.Errorf("%s track is closed", t.kind)
	}
	old := t.src
	t.src = src
	return old, nil
}

// VideoDevices implements media.Transport.
func (t *Transport) VideoDevices(context.Context) ([]media.Device, error) {
	if t.capture == nil {
		return nil, nil
	}
	return t.capture.Devices(media.TrackVideo), nil
}

// CreateMicrophone implements media.Transport.
func (t *Transport) CreateMicrophone(ctx context.Context) (media.Handle, error) {
	return t.open(ctx, media.TrackAudio, "")
}

// CreateCamera implements media.Transport. It opens the first camera.
func (t *Transport) CreateCamera(ctx context.Context) (media.Handle, error) {
	if t.capture == nil {
		return nil, ErrNoCapture
	}
	devices := t.capture.Devices(media.TrackVideo)
	if len(devices) == 0 {
		return nil, errors.New("no camera found")
	}
	return t.open(ctx, media.TrackVideo, devices[0].ID)
}

func (t *Transport) open(ctx context.Context, kind media.TrackKind, deviceID string) (*track, error) {
	if t.capture == nil {
		return nil, ErrNoCapture
	}
	src, err := t.capture.Open(ctx, kind, deviceID)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", kind, err)
	}
	t.logger.Debug("capture opened", zap.String("kind", string(kind)), zap.String("device", src.DeviceID))
	return &track{kind: kind, src: src}, nil
}

// SwitchDevice implements media.Transport. The new device is opened before
// the old one is released, so a failed switch leaves the camera running.
func (t *Transport) SwitchDevice(ctx context.Context, h media.Handle, deviceID string) error {
	tr, ok := h.(*track)
	if !ok || tr.kind != media.TrackVideo {
		return fmt.Errorf("not a camera handle")
	}
	if t.capture == nil {
		return ErrNoCapture
	}
	if tr.DeviceID() == deviceID {
		return nil
	}
	found := false
	for _, d := range t.capture.Devices(media.TrackVideo) {
		if d.ID == deviceID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("camera %s not found", deviceID)
	}

	src, err := t.capture.Open(ctx, media.TrackVideo, deviceID)
	if err != nil {
		return fmt.Errorf("open camera %s: %w", deviceID, err)
	}
	discard := func() {
		if src.Close != nil {
			_ = src.Close()
		}
	}

	t.mu.Lock()
	sender := t.senders[tr]
	t.mu.Unlock()
	if sender != nil {
		if err := sender.ReplaceTrack(src.Track); err != nil {
			discard()
			return fmt.Errorf("replace camera track: %w", err)
		}
	}

	old, err := tr.replace(src)
	if err != nil {
		discard()
		return err
	}
	if old.Close != nil {
		if err := old.Close(); err != nil {
			t.logger.Warn("failed to release previous camera", zap.String("device", old.DeviceID), zap.Error(err))
		}
	}
	return nil
}
