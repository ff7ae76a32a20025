package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// AccountData holds the header details of the daemon account.
type AccountData struct {
	Account  string
	UserID   string
	State    string
	Peer     string
	Camera   string
	Presence string
	Uptime   time.Duration
}

// AccountInfo displays account metadata in the header.
type AccountInfo struct {
	*tview.TextView
	theme *Theme
}

// NewAccountInfo creates a new account info panel.
func NewAccountInfo(theme *Theme) *AccountInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &AccountInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the account info.
func (ai *AccountInfo) Update(data *AccountData) {
	ai.Clear()
	if data == nil {
		return
	}

	fgColor := colorName(ai.theme.FgColor)
	counterColor := colorName(ai.theme.CounterColor)
	stateColor := colorName(ai.theme.StateColor(data.State))

	text := fmt.Sprintf(
		"[%s::b]Account:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Call:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Peer:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Camera:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]Hub:[-:-:-]     [%s]%s[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fgColor, counterColor, data.Account,
		fgColor, counterColor, orDash(data.UserID),
		fgColor, stateColor, data.State,
		fgColor, counterColor, orDash(data.Peer),
		fgColor, counterColor, orDash(data.Camera),
		fgColor, counterColor, orDash(data.Presence),
		fgColor, counterColor, formatDuration(data.Uptime),
	)

	_, _ = fmt.Fprint(ai, text)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
