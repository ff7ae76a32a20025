package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the account and call state.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	account string
	state   string
	status  string
	flash   string
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme}
}

// SetAccount updates the account name display.
func (sb *StatusBar) SetAccount(name string) {
	sb.account = name
	sb.render()
}

// SetCall updates the call state and the call screen status line.
func (sb *StatusBar) SetCall(state, status string) {
	sb.state = state
	sb.status = status
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	clock := time.Now().Format("15:04")
	state := sb.state
	if state == "" {
		state = "OFFLINE"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-]", sb.account, ui.Tag(sb.theme.StateColor(state)), state)
	if sb.status != "" {
		line += " " + tview.Escape(sb.status)
	}
	line += " | " + clock
	if sb.flash != "" {
		line += fmt.Sprintf(" | [yellow]%s[-]", tview.Escape(sb.flash))
	}

	_, _ = fmt.Fprint(sb, line)
}
