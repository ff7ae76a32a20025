package ui

import (
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode selects what the prompt input is used for.
type PromptMode int

const (
	// PromptCommand runs call commands such as "call bruno video".
	PromptCommand PromptMode = iota
	// PromptFilter narrows the call history by name.
	PromptFilter
)

const maxRecall = 20

// Prompt is the input bar for call commands and the history filter.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	commands []string
	recall   []string
	cursor   int
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates the input bar. commands are offered as completions in
// command mode.
func NewPrompt(theme *Theme, commands ...string) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	sorted := append([]string(nil), commands...)
	sort.Strings(sorted)
	p := &Prompt{
		InputField: input,
		theme:      theme,
		commands:   sorted,
	}

	input.SetAutocompleteFunc(func(text string) []string {
		if p.mode != PromptCommand {
			return nil
		}
		return p.Complete(text)
	})
	input.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if p.mode != PromptCommand {
			return event
		}
		switch event.Key() {
		case tcell.KeyUp:
			p.SetText(p.Recall(-1))
			return nil
		case tcell.KeyDown:
			p.SetText(p.Recall(1))
			return nil
		}
		return event
	})
	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := strings.TrimSpace(p.GetText())
			if text != "" {
				p.remember(text)
				if p.onSubmit != nil {
					p.onSubmit(p.mode, text)
				}
			}
			p.SetText("")
		case tcell.KeyEscape:
			p.SetText("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})

	return p
}

func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate clears the input and shows it in mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.cursor = len(p.recall)
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Find in history ")
	}
}

func (p *Prompt) Mode() PromptMode {
	return p.mode
}

// Complete returns the commands that start with the first word of text.
// Once a command is followed by a space its arguments are free text.
func (p *Prompt) Complete(text string) []string {
	if text == "" || strings.ContainsRune(text, ' ') {
		return nil
	}
	var out []string
	for _, c := range p.commands {
		if strings.HasPrefix(c, text) && c != text {
			out = append(out, c)
		}
	}
	return out
}

// Recall moves through previously submitted commands: -1 goes to an older
// one, 1 to a newer one. Stepping past the newest returns an empty line.
func (p *Prompt) Recall(step int) string {
	p.cursor += step
	if p.cursor < 0 {
		p.cursor = 0
	}
	if p.cursor >= len(p.recall) {
		p.cursor = len(p.recall)
		return ""
	}
	return p.recall[p.cursor]
}

func (p *Prompt) remember(text string) {
	if p.mode != PromptCommand {
		return
	}
	if n := len(p.recall); n > 0 && p.recall[n-1] == text {
		p.cursor = n
		return
	}
	p.recall = append(p.recall, text)
	if len(p.recall) > maxRecall {
		p.recall = p.recall[len(p.recall)-maxRecall:]
	}
	p.cursor = len(p.recall)
}
