package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/rivo/tview"
)

// FamilyView lists the contacts that can be called, with whether they are
// online.
type FamilyView struct {
	*tview.Table
	theme    *ui.Theme
	contacts []api.Contact
	now      func() time.Time
}

// NewFamilyView creates the contact list.
func NewFamilyView(theme *ui.Theme) *FamilyView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Family ")
	table.SetTitleColor(theme.TitleColor)

	return &FamilyView{Table: table, theme: theme, now: time.Now}
}

// Name implements Component.
func (fv *FamilyView) Name() string { return "Family" }

// Init implements Component.
func (fv *FamilyView) Init() {}

// Start implements Component.
func (fv *FamilyView) Start() {}

// Stop implements Component.
func (fv *FamilyView) Stop() {}

// Hints implements Component.
func (fv *FamilyView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Audio call"},
		{Key: "Esc", Description: "Back"},
	}
}

// Update replaces the listed contacts.
func (fv *FamilyView) Update(contacts []api.Contact) {
	fv.contacts = contacts
	fv.render()
}

// SelectedContact returns the id of the selected contact.
func (fv *FamilyView) SelectedContact() string {
	row, _ := fv.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(fv.contacts) {
		return ""
	}
	return fv.contacts[idx].ID
}

func (fv *FamilyView) render() {
	fv.Clear()
	for col, h := range []string{" Name", " Status", " Last seen"} {
		fv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(fv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}
	for i, c := range fv.contacts {
		row := i + 1
		label, color := PresenceLabel(c), fv.theme.FgColor
		if c.Online {
			color = fv.theme.ActiveColor
		}
		seen := ""
		if !c.Online && c.LastSeen > 0 {
			seen = lastSeen(time.UnixMilli(c.LastSeen), fv.now())
		}
		fv.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(cleanName(c.DisplayName()))).SetMaxWidth(30).SetExpansion(1))
		fv.SetCell(row, 1, tview.NewTableCell(" "+label).SetTextColor(color))
		fv.SetCell(row, 2, tview.NewTableCell(" "+seen))
	}
}

// PresenceLabel describes a contact's hub presence.
func PresenceLabel(c api.Contact) string {
	switch {
	case !c.PresenceKnown:
		return "unknown"
	case c.Online:
		return "online"
	default:
		return "offline"
	}
}

func lastSeen(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d min ago", int(d/time.Minute))
	case t.Year() == now.Year() && t.YearDay() == now.YearDay():
		return "today " + t.Format("15:04")
	default:
		return t.Format("01/02 15:04")
	}
}
