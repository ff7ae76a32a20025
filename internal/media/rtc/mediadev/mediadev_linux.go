//go:build linux

// Package mediadev captures the camera (V4L2) and microphone (malgo) with
// pion/mediadevices and encodes them as VP8 and Opus.
package mediadev

import (
	"context"
	"fmt"

	"github.com/matheus3301/famcall/internal/media"
	"github.com/matheus3301/famcall/internal/media/rtc"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

const videoBitRate = 1_500_000

// Capturer is an rtc.Capturer over the host's capture drivers.
type Capturer struct {
	selector *mediadevices.CodecSelector
	logger   *zap.Logger
}

var _ rtc.Capturer = (*Capturer)(nil)

// New builds the VP8 and Opus encoder selector.
func New(logger *zap.Logger) (*Capturer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = videoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	c := &Capturer{
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		logger: logger,
	}
	for _, kind := range []media.TrackKind{media.TrackVideo, media.TrackAudio} {
		logger.Info("capture devices", zap.String("kind", string(kind)), zap.Int("count", len(c.Devices(kind))))
	}
	return c, nil
}

// RegisterCodecs implements rtc.Capturer.
func (c *Capturer) RegisterCodecs(m *webrtc.MediaEngine) error {
	c.selector.Populate(m)
	return nil
}

// Devices implements rtc.Capturer.
func (c *Capturer) Devices(kind media.TrackKind) []media.Device {
	want := mediadevices.AudioInput
	if kind == media.TrackVideo {
		want = mediadevices.VideoInput
	}
	var out []media.Device
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind != want {
			continue
		}
		label := d.Label
		if label == "" {
			label = d.DeviceID
		}
		out = append(out, media.Device{ID: d.DeviceID, Label: label})
	}
	return out
}

// Open implements rtc.Capturer.
func (c *Capturer) Open(_ context.Context, kind media.TrackKind, deviceID string) (*rtc.Source, error) {
	if deviceID == "" {
		devices := c.Devices(kind)
		if len(devices) == 0 {
			return nil, fmt.Errorf("no %s device found", kind)
		}
		deviceID = devices[0].ID
	}

	constraints := mediadevices.MediaStreamConstraints{Codec: c.selector}
	switch kind {
	case media.TrackVideo:
		constraints.Video = func(mc *mediadevices.MediaTrackConstraints) {
			mc.DeviceID = deviceID
			// Raw formats only; some MJPEG nodes emit frames the VP8 encoder rejects.
			mc.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			mc.Width = prop.IntRanged{Max: 640}
			mc.Height = prop.IntRanged{Max: 480}
		}
	case media.TrackAudio:
		constraints.Audio = func(mc *mediadevices.MediaTrackConstraints) {
			mc.DeviceID = deviceID
		}
	default:
		return nil, fmt.Errorf("unknown track kind %q", kind)
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("get user media %s: %w", deviceID, err)
	}
	tracks := stream.GetTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("device %s produced no track", deviceID)
	}
	for _, extra := range tracks[1:] {
		_ = extra.Close()
	}

	track := tracks[0]
	track.OnEnded(func(err error) {
		if err != nil {
			c.logger.Warn("capture ended", zap.String("device", deviceID), zap.Error(err))
		}
	})
	c.logger.Info("capture started", zap.String("kind", string(kind)), zap.String("device", deviceID))
	return &rtc.Source{Track: track, DeviceID: deviceID, Close: track.Close}, nil
}
