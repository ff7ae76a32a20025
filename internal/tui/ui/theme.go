package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/famcall/internal/call"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	MenuKeyColor      tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	RingingColor      tcell.Color
	ActiveColor       tcell.Color
	MissedColor       tcell.Color
	AcceptColor       tcell.Color
	DeclineColor      tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TableHeaderFg:     tcell.ColorWhite,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		TitleColor:        tcell.ColorFuchsia,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorDodgerBlue,
		RingingColor:      tcell.ColorOrange,
		ActiveColor:       tcell.ColorLime,
		MissedColor:       tcell.ColorOrangeRed,
		AcceptColor:       tcell.ColorLime,
		DeclineColor:      tcell.ColorOrangeRed,
	}
}

// StateColor returns the color used for a call state name.
func (t *Theme) StateColor(state string) tcell.Color {
	switch state {
	case call.StateOutgoing.String(), call.StateIncoming.String():
		return t.RingingColor
	case call.StateActive.String():
		return t.ActiveColor
	default:
		return t.FgColor
	}
}

// ButtonColor returns the color of a call screen button.
func (t *Theme) ButtonColor(b call.Button) tcell.Color {
	switch b {
	case call.ButtonAccept:
		return t.AcceptColor
	case call.ButtonDecline, call.ButtonHangup:
		return t.DeclineColor
	default:
		return t.MenuKeyColor
	}
}

// Tag returns c as a tview color tag value.
func Tag(c tcell.Color) string {
	return colorName(c)
}

func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
