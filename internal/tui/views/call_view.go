package views

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/rivo/tview"
)

// ButtonKeys maps call screen buttons to the keys that press them.
var ButtonKeys = map[call.Button]rune{
	call.ButtonAccept:  'a',
	call.ButtonDecline: 'd',
	call.ButtonHangup:  'h',
	call.ButtonFlip:    'f',
}

// CallView is the call screen.
type CallView struct {
	*tview.TextView
	theme *ui.Theme
	info  *api.CallInfo
}

// NewCallView creates a new call screen.
func NewCallView(theme *ui.Theme) *CallView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Call ")
	tv.SetTitleColor(theme.TitleColor)

	cv := &CallView{TextView: tv, theme: theme}
	cv.Update(nil)
	return cv
}

// Name implements Component.
func (cv *CallView) Name() string { return "Call" }

// Init implements Component.
func (cv *CallView) Init() {}

// Start implements Component.
func (cv *CallView) Start() {}

// Stop implements Component.
func (cv *CallView) Stop() {}

// Hints implements Component.
func (cv *CallView) Hints() []ui.MenuHint {
	var hints []ui.MenuHint
	if cv.info != nil {
		for _, b := range cv.info.View.Buttons {
			hints = append(hints, ui.MenuHint{
				Key:         string(ButtonKeys[b]),
				Description: buttonLabel(b),
				Color:       cv.theme.ButtonColor(b),
			})
		}
	}
	return hints
}

// Update redraws the screen from the daemon's call info.
func (cv *CallView) Update(info *api.CallInfo) {
	cv.info = info
	cv.Clear()
	_, _ = fmt.Fprint(cv, RenderCall(info, cv.theme))
}

// RenderCall returns the tview markup for the call screen.
func RenderCall(info *api.CallInfo, theme *ui.Theme) string {
	fg := ui.Tag(theme.FgColor)
	if info == nil || !info.View.Visible {
		return fmt.Sprintf("\n\n[%s]No call in progress.[-]\n\n[%s::d]:call <user> [video]   to start one[-:-:-]", fg, fg)
	}
	v := info.View

	var sb strings.Builder
	sb.WriteString("\n")
	switch {
	case v.ShowVideo:
		sb.WriteString(videoBox(info, theme))
	case v.ShowAvatar:
		sb.WriteString(avatarBox(v.Title, theme))
	}
	fmt.Fprintf(&sb, "\n[%s::b]%s[-:-:-]\n", ui.Tag(theme.TitleColor), tview.Escape(cleanName(v.Title)))
	fmt.Fprintf(&sb, "[%s]%s[-]\n", ui.Tag(theme.StateColor(info.State)), tview.Escape(v.Status))
	if info.Kind != "" {
		fmt.Fprintf(&sb, "[%s::d]%s call[-:-:-]\n", fg, info.Kind)
	}

	if len(v.Buttons) > 0 {
		sb.WriteString("\n")
		labels := make([]string, 0, len(v.Buttons))
		for _, b := range v.Buttons {
			labels = append(labels, fmt.Sprintf("[%s::b]<%c>[-:-:-] %s", ui.Tag(theme.ButtonColor(b)), ButtonKeys[b], buttonLabel(b)))
		}
		sb.WriteString(strings.Join(labels, "    "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func avatarBox(name string, theme *ui.Theme) string {
	c := ui.Tag(theme.BorderFocusColor)
	ini := initials(cleanName(name))
	return fmt.Sprintf("[%s]╭──────╮\n│  %-2s  │\n╰──────╯[-]\n", c, tview.Escape(ini))
}

func videoBox(info *api.CallInfo, theme *ui.Theme) string {
	c := ui.Tag(theme.ActiveColor)
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]╭────────────────────╮[-]\n", c)
	if len(info.Media.Remote) == 0 {
		fmt.Fprintf(&sb, "[%s]│%s│[-]\n", c, center("waiting for video", 20))
	}
	for _, p := range info.Media.Remote {
		flags := ""
		if p.Video {
			flags += "▶"
		}
		if p.Audio {
			flags += "♪"
		}
		fmt.Fprintf(&sb, "[%s]│%s│[-]\n", c, center(tview.Escape(p.ID)+" "+flags, 20))
	}
	fmt.Fprintf(&sb, "[%s]╰────────────────────╯[-]\n", c)
	if info.Media.Camera != "" {
		fmt.Fprintf(&sb, "[%s::d]camera: %s[-:-:-]\n", ui.Tag(theme.FgColor), tview.Escape(info.Media.Camera))
	}
	return sb.String()
}

func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return string([]rune(s)[:width])
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

func initials(name string) string {
	var out []rune
	for _, f := range strings.Fields(name) {
		r := []rune(f)[0]
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "?"
	}
	return string(out)
}

func buttonLabel(b call.Button) string {
	switch b {
	case call.ButtonAccept:
		return "Accept"
	case call.ButtonDecline:
		return "Decline"
	case call.ButtonHangup:
		return "Hang up"
	case call.ButtonFlip:
		return "Flip camera"
	default:
		return string(b)
	}
}
