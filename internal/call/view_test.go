package call

import (
	"slices"
	"testing"
	"time"
)

func TestChannelNameSymmetric(t *testing.T) {
	if ChannelName("u1", "u2") != ChannelName("u2", "u1") {
		t.Error("channel name must not depend on argument order")
	}
	if got := ChannelName("u1", "u2"); got != "call_u2_u1" {
		t.Errorf("ChannelName = %q, want call_u2_u1", got)
	}
	if ChatID("a", "b") != "b_a" {
		t.Errorf("ChatID(a, b) = %q, want b_a", ChatID("a", "b"))
	}
}

func TestParseMediaKind(t *testing.T) {
	for _, s := range []string{"audio", "video"} {
		if _, err := ParseMediaKind(s); err != nil {
			t.Errorf("ParseMediaKind(%q) error = %v", s, err)
		}
	}
	if _, err := ParseMediaKind("screen"); err == nil {
		t.Error("ParseMediaKind(screen) should fail")
	}
}

func TestDescribe(t *testing.T) {
	peer := Profile{ID: "u2", Name: "Mom"}
	video := Details{SessionID: "s1", Kind: Video, Peer: peer}
	audio := Details{SessionID: "s1", Kind: Audio, Peer: peer}

	tests := []struct {
		name       string
		call       Call
		joined     bool
		elapsed    time.Duration
		cameras    int
		wantStatus string
		wantAvatar bool
		wantVideo  bool
		wantBtns   []Button
	}{
		{"none", NoCall{}, false, 0, 0, "", false, false, nil},
		{"outgoing", Outgoing{Details: video}, false, 0, 0, "Calling Mom...", true, false, []Button{ButtonHangup}},
		{"incoming", Incoming{Details: audio}, false, 0, 0, "Mom is calling...", true, false, []Button{ButtonDecline, ButtonAccept}},
		{"connecting", Active{Details: video}, false, 0, 2, "Connecting...", true, false, []Button{ButtonHangup}},
		{"video joined", Active{Details: video}, true, 75 * time.Second, 2, "01:15", false, true, []Button{ButtonFlip, ButtonHangup}},
		{"video single camera", Active{Details: video}, true, 0, 1, "00:00", false, true, []Button{ButtonHangup}},
		{"audio joined", Active{Details: audio}, true, 5 * time.Second, 3, "00:05", true, false, []Button{ButtonHangup}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Describe(tt.call, tt.joined, tt.elapsed, tt.cameras)
			if v.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", v.Status, tt.wantStatus)
			}
			if v.ShowAvatar != tt.wantAvatar {
				t.Errorf("avatar = %v, want %v", v.ShowAvatar, tt.wantAvatar)
			}
			if v.ShowVideo != tt.wantVideo {
				t.Errorf("video = %v, want %v", v.ShowVideo, tt.wantVideo)
			}
			if !slices.Equal(v.Buttons, tt.wantBtns) {
				t.Errorf("buttons = %v, want %v", v.Buttons, tt.wantBtns)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(3*time.Minute + 7*time.Second); got != "03:07" {
		t.Errorf("FormatDuration = %q, want 03:07", got)
	}
}
