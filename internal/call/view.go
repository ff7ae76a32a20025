package call

import (
	"fmt"
	"time"
)

// Button is a control offered on the call screen.
type Button string

const (
	ButtonAccept  Button = "accept"
	ButtonDecline Button = "decline"
	ButtonHangup  Button = "hangup"
	ButtonFlip    Button = "flip"
)

// View describes what the call screen shows, independent of how it is drawn.
type View struct {
	Visible    bool     `json:"visible"`
	Title      string   `json:"title,omitempty"`
	Status     string   `json:"status,omitempty"`
	ShowAvatar bool     `json:"showAvatar"`
	ShowVideo  bool     `json:"showVideo"`
	Buttons    []Button `json:"buttons,omitempty"`
}

// Describe maps the call state, the media joined flag, the elapsed time and
// the number of cameras to a view.
func Describe(c Call, joined bool, elapsed time.Duration, cameras int) View {
	d, ok := DetailsOf(c)
	if !ok {
		return View{}
	}
	name := d.Peer.DisplayName()
	v := View{
		Visible:    true,
		Title:      name,
		ShowAvatar: d.Kind == Audio || !joined,
	}

	switch c.State() {
	case StateOutgoing:
		v.Status = fmt.Sprintf("Calling %s...", name)
		v.Buttons = []Button{ButtonHangup}
	case StateIncoming:
		v.Status = fmt.Sprintf("%s is calling...", name)
		v.Buttons = []Button{ButtonDecline, ButtonAccept}
	case StateActive:
		if joined {
			v.Status = FormatDuration(elapsed)
			v.ShowVideo = d.Kind == Video
		} else {
			v.Status = "Connecting..."
		}
		if d.Kind == Video && joined && cameras > 1 {
			v.Buttons = append(v.Buttons, ButtonFlip)
		}
		v.Buttons = append(v.Buttons, ButtonHangup)
	}
	return v
}

// FormatDuration renders d as mm:ss.
func FormatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
