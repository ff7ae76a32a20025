package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// MenuRows is the height of the header the menu lives in.
const MenuRows = 8

const columnGap = 2

// Menu lists the keys that work on the current screen. Call buttons keep
// their own colors so Accept and Hang up read at a glance.
type Menu struct {
	*tview.TextView
	theme *Theme
}

func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders hints top to bottom, starting a new column every MenuRows
// hints.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	_, _ = fmt.Fprint(m, RenderMenu(hints, m.theme))
}

// RenderMenu lays hints out in columns of MenuRows lines.
func RenderMenu(hints []MenuHint, theme *Theme) string {
	if len(hints) == 0 {
		return ""
	}
	cols := (len(hints) + MenuRows - 1) / MenuRows
	widths := make([]int, cols)
	for i, h := range hints {
		if w := hintWidth(h); w > widths[i/MenuRows] {
			widths[i/MenuRows] = w
		}
	}

	rows := min(len(hints), MenuRows)
	var sb strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			i := c*MenuRows + r
			if i >= len(hints) {
				break
			}
			h := hints[i]
			kc := colorName(theme.MenuKeyColor)
			if h.Color != 0 {
				kc = colorName(h.Color)
			}
			fmt.Fprintf(&sb, "[%s::b]<%s>[-:-:-] %s", kc, h.Key, h.Description)
			if c < cols-1 && i+MenuRows < len(hints) {
				sb.WriteString(strings.Repeat(" ", widths[c]-hintWidth(h)+columnGap))
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// hintWidth is the printed width of "<key> description".
func hintWidth(h MenuHint) int { return len(h.Key) + len(h.Description) + 3 }
