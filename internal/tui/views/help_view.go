package views

import (
	"fmt"

	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Init implements Component.
func (hv *HelpView) Init() {}

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.Tag(hv.theme.MenuKeyColor)

	rows := []struct{ section, key, desc string }{
		{"Global Keys", ":", "Command mode"},
		{"", "Esc", "Cancel / Go back"},
		{"", "?", "Help"},
		{"", "H", "Call history"},
		{"", "F", "Family and who is online"},
		{"", "L", "Link for the ringing call"},
		{"", "q", "Quit"},
		{"Call Screen", "a", "Accept incoming call"},
		{"", "d", "Decline incoming call"},
		{"", "h", "Hang up"},
		{"", "f", "Flip camera (video, two or more cameras)"},
		{"Family", "Enter", "Audio call"},
		{"", "v", "Video call"},
		{"History", "Enter", "Call back (audio)"},
		{"", "/", "Filter by name"},
		{"Commands (: mode)", ":call <user> [video]", "Start a call"},
		{"", ":accept", "Accept incoming call"},
		{"", ":end", "Hang up, cancel or decline"},
		{"", ":flip", "Flip camera"},
		{"", ":open <link>", "Open a famcall:// accept link"},
		{"", ":history", "Show call history"},
		{"", ":family", "Show family presence"},
		{"", ":help / :h", "Show this help"},
		{"", ":quit / :q", "Quit application"},
	}

	for _, r := range rows {
		if r.section != "" {
			_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", r.section)
		}
		_, _ = fmt.Fprintf(hv, "  [%s]%-22s[-:-:-] %s\n", kc, tview.Escape(r.key), r.desc)
	}
}
