package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/store"
	"github.com/matheus3301/famcall/internal/tui/ui"
	"github.com/rivo/tview"
)

// HistoryView lists call receipts and missed calls.
type HistoryView struct {
	*tview.Table
	theme  *ui.Theme
	self   string
	names  map[string]string
	calls  []store.Message
	shown  []store.Message
	filter string
}

// NewHistoryView creates a new call history table.
func NewHistoryView(theme *ui.Theme, self string) *HistoryView {
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
	table.SetTitle(" History ")
	table.SetTitleColor(theme.TitleColor)

	return &HistoryView{Table: table, theme: theme, self: self}
}

// Name implements Component.
func (hv *HistoryView) Name() string { return "History" }

// Init implements Component.
func (hv *HistoryView) Init() {}

// Start implements Component.
func (hv *HistoryView) Start() {}

// Stop implements Component.
func (hv *HistoryView) Stop() {}

// Hints implements Component.
func (hv *HistoryView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Call back"},
		{Key: "/", Description: "Filter"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetNames sets the display names used for peer ids.
func (hv *HistoryView) SetNames(names map[string]string) {
	hv.names = names
	hv.render()
}

// Update refreshes the table with new records, newest first.
func (hv *HistoryView) Update(calls []store.Message) {
	hv.calls = calls
	hv.render()
}

// SetFilter keeps only rows whose peer matches text.
func (hv *HistoryView) SetFilter(text string) {
	hv.filter = strings.ToLower(strings.TrimSpace(text))
	hv.render()
}

// SelectedPeer returns the peer id of the selected row.
func (hv *HistoryView) SelectedPeer() string {
	row, _ := hv.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(hv.shown) {
		return ""
	}
	return PeerOf(hv.shown[idx], hv.self)
}

// PeerOf returns the other participant of a call record.
func PeerOf(m store.Message, self string) string {
	if m.SenderID == self {
		return m.ReceiverID
	}
	return m.SenderID
}

func (hv *HistoryView) render() {
	hv.Clear()
	hv.shown = hv.shown[:0]

	title := " History "
	if hv.filter != "" {
		title = fmt.Sprintf(" History (/%s) ", hv.filter)
	}
	hv.SetTitle(title)

	for col, h := range []string{" Peer", " Call", " Direction", " Length", " When"} {
		hv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(hv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold))
	}

	row := 1
	for _, m := range hv.calls {
		peer := PeerOf(m, hv.self)
		name := peer
		if n := hv.names[peer]; n != "" {
			name = n
		}
		if hv.filter != "" && !strings.Contains(strings.ToLower(name), hv.filter) && !strings.Contains(strings.ToLower(peer), hv.filter) {
			continue
		}
		hv.shown = append(hv.shown, m)

		dir := "in"
		if m.SenderID == hv.self {
			dir = "out"
		}
		color := hv.theme.FgColor
		length := call.FormatDuration(time.Duration(m.Duration) * time.Second)
		if m.Type == store.TypeMissedCall {
			color = hv.theme.MissedColor
			length = "-"
		}

		hv.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(cleanName(name))).SetMaxWidth(30).SetExpansion(1).SetTextColor(color))
		hv.SetCell(row, 1, tview.NewTableCell(" "+callLabel(m.Type)).SetTextColor(color))
		hv.SetCell(row, 2, tview.NewTableCell(" "+dir))
		hv.SetCell(row, 3, tview.NewTableCell(" "+length))
		hv.SetCell(row, 4, tview.NewTableCell(" "+formatTimestamp(m.Timestamp)).SetMaxWidth(12))
		row++
	}
}

func callLabel(t store.MessageType) string {
	switch t {
	case store.TypeVideoCall:
		return "video"
	case store.TypeAudioCall:
		return "audio"
	case store.TypeMissedCall:
		return "missed"
	default:
		return string(t)
	}
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
