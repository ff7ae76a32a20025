package views

import (
	"testing"

	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/media"
	"github.com/matheus3301/famcall/internal/store"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/stretchr/testify/assert"
)

func TestRenderCallIdle(t *testing.T) {
	out := RenderCall(&api.CallInfo{State: "NONE"}, ui.DefaultTheme())
	assert.Contains(t, out, "No call in progress.")

	assert.Equal(t, out, RenderCall(nil, ui.DefaultTheme()))
}

func TestRenderCallIncoming(t *testing.T) {
	info := &api.CallInfo{
		State: "INCOMING",
		Kind:  call.Video,
		View: call.View{
			Visible:    true,
			Title:      "Bruno Souza",
			Status:     "Bruno Souza is calling...",
			ShowAvatar: true,
			Buttons:    []call.Button{call.ButtonDecline, call.ButtonAccept},
		},
	}
	out := RenderCall(info, ui.DefaultTheme())
	assert.Contains(t, out, "BS")
	assert.Contains(t, out, "Bruno Souza is calling...")
	assert.Contains(t, out, "<d>[-:-:-] Decline")
	assert.Contains(t, out, "<a>[-:-:-] Accept")
	assert.Contains(t, out, "video call")
}

func TestRenderCallVideo(t *testing.T) {
	info := &api.CallInfo{
		State: "ACTIVE",
		Kind:  call.Video,
		Media: media.Snapshot{Joined: true, Camera: "Front", Remote: []media.Participant{{ID: "u2", Audio: true, Video: true}}},
		View: call.View{
			Visible:   true,
			Title:     "Bruno",
			Status:    "01:05",
			ShowVideo: true,
			Buttons:   []call.Button{call.ButtonFlip, call.ButtonHangup},
		},
	}
	out := RenderCall(info, ui.DefaultTheme())
	assert.Contains(t, out, "u2 ▶♪")
	assert.Contains(t, out, "camera: Front")
	assert.Contains(t, out, "01:05")
	assert.Contains(t, out, "<f>[-:-:-] Flip camera")
	assert.NotContains(t, out, "╭──────╮", "avatar hidden while video shows")
}

func TestCallViewHints(t *testing.T) {
	cv := NewCallView(ui.DefaultTheme())
	assert.Empty(t, cv.Hints())

	cv.Update(&api.CallInfo{View: call.View{Visible: true, Buttons: []call.Button{call.ButtonHangup}}})
	hints := cv.Hints()
	if assert.Len(t, hints, 1) {
		assert.Equal(t, "h", hints[0].Key)
		assert.Equal(t, "Hang up", hints[0].Description)
	}
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "AM", initials("ana maria silva"))
	assert.Equal(t, "B", initials("Bruno"))
	assert.Equal(t, "?", initials("  "))
}

func TestHistoryFilterAndSelection(t *testing.T) {
	hv := NewHistoryView(ui.DefaultTheme(), "u1")
	hv.SetNames(map[string]string{"u2": "Bruno", "u3": "Carla"})
	hv.Update([]store.Message{
		{SenderID: "u1", ReceiverID: "u2", Type: store.TypeAudioCall, Duration: 65},
		{SenderID: "u3", ReceiverID: "u1", Type: store.TypeMissedCall},
	})
	assert.Equal(t, 3, hv.GetRowCount())

	hv.SetFilter("car")
	assert.Equal(t, 2, hv.GetRowCount())
	hv.Select(1, 0)
	assert.Equal(t, "u3", hv.SelectedPeer())

	hv.SetFilter("")
	hv.Select(1, 0)
	assert.Equal(t, "u2", hv.SelectedPeer())
}
