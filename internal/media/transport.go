package media

import (
	"context"
	"errors"
)

// ErrNotJoined is returned for operations that need a joined video call.
var ErrNotJoined = errors.New("not joined to a video call")

// TrackKind is the kind of a local media track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Handle is a local capture track. Close releases the underlying device and
// must be safe to call once per handle.
type Handle interface {
	Kind() TrackKind
	DeviceID() string
	Close() error
}

// Device is a capture device that a camera handle can be switched to.
type Device struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Participant is a remote member of the channel.
type Participant struct {
	ID    string `json:"id"`
	Audio bool   `json:"audio"`
	Video bool   `json:"video"`
}

// Transport is a real-time media session for one channel at a time.
type Transport interface {
	Join(ctx context.Context, channel, participant string) error
	Leave(ctx context.Context) error
	CreateMicrophone(ctx context.Context) (Handle, error)
	CreateCamera(ctx context.Context) (Handle, error)
	Publish(ctx context.Context, handles ...Handle) error
	Unpublish(ctx context.Context, handles ...Handle) error
	VideoDevices(ctx context.Context) ([]Device, error)
	SwitchDevice(ctx context.Context, h Handle, deviceID string) error
	RemoteParticipants() []Participant
}
