package views

import (
	"fmt"

	"github.com/matheus3301/famcall/internal/deeplink"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/rivo/tview"
)

// LinkView shows the accept link of a ringing session as a QR code, so the
// call can be picked up from another device.
type LinkView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewLinkView creates a new link view.
func NewLinkView(theme *ui.Theme) *LinkView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Call Link ")
	tv.SetTitleColor(theme.TitleColor)

	return &LinkView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (lv *LinkView) Name() string { return "Link" }

// Init implements Component.
func (lv *LinkView) Init() {}

// Start implements Component.
func (lv *LinkView) Start() {}

// Stop implements Component.
func (lv *LinkView) Stop() {}

// Hints implements Component.
func (lv *LinkView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// ShowSession renders the accept link for sessionID.
func (lv *LinkView) ShowSession(sessionID string) {
	lv.Clear()
	link := deeplink.Format(sessionID)
	qr, err := deeplink.QR(link)
	if err != nil {
		lv.ShowMessage("QR generation failed: " + err.Error())
		return
	}
	_, _ = fmt.Fprintf(lv, "\n  Scan to answer on another device:\n\n%s\n  [::d]%s[-:-:-]", qr, tview.Escape(link))
}

// ShowMessage displays a status message.
func (lv *LinkView) ShowMessage(msg string) {
	lv.Clear()
	_, _ = fmt.Fprintf(lv, "\n\n%s", tview.Escape(msg))
}
