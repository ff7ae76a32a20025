package ui

import "github.com/rivo/tview"

// Pages keeps the call screen at the bottom of a stack of side pages
// (history, family, help). Esc walks back down to the call screen, never
// past it.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(current string)
}

func NewPages() *Pages {
	return &Pages{
		Pages: tview.NewPages(),
	}
}

// SetOnChange sets a callback that receives the page on top after every
// change.
func (p *Pages) SetOnChange(fn func(current string)) {
	p.onChange = fn
}

// Push shows name on top. A page already on the stack is moved up rather
// than stacked twice, so Esc never revisits it.
func (p *Pages) Push(name string) {
	if p.Current() == name {
		return
	}
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	for i, n := range p.stack {
		if n == name {
			p.stack = append(p.stack[:i], p.stack[i+1:]...)
			break
		}
	}
	p.stack = append(p.stack, name)
	p.show(name)
}

// Back hides the top page and reports whether one was hidden. The bottom
// page is never removed.
func (p *Pages) Back() bool {
	if len(p.stack) < 2 {
		return false
	}
	p.HidePage(p.stack[len(p.stack)-1])
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.Current())
	return true
}

// Current returns the page on top.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Reset drops every side page and shows name alone.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	if p.onChange != nil {
		p.onChange(name)
	}
}
