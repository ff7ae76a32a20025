package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel is how loudly a notice is shown.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
	// FlashRing marks an incoming call. It stays up until dismissed.
	FlashRing
)

const (
	infoTTL = 5 * time.Second
	warnTTL = 8 * time.Second
	errTTL  = 10 * time.Second
)

// FlashMessage is a call notice. A zero Expires never expires.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Expires time.Time
}

func (m FlashMessage) expired(now time.Time) bool {
	return !m.Expires.IsZero() && now.After(m.Expires)
}

// FlashModel holds the notice shown under the call screen.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
	watchCh chan FlashMessage
}

// NewFlashModel creates an empty flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		watchCh: make(chan FlashMessage, 8),
	}
}

func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo, infoTTL) }

func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn, warnTTL) }

func (f *FlashModel) Err(err error) { f.set(err.Error(), FlashErr, errTTL) }

// Ring shows msg until Dismiss is called or another notice replaces it.
func (f *FlashModel) Ring(msg string) { f.set(msg, FlashRing, 0) }

// Dismiss clears a ring notice. Timed notices are left to expire.
func (f *FlashModel) Dismiss() {
	f.mu.Lock()
	if f.current.Level != FlashRing {
		f.mu.Unlock()
		return
	}
	f.current = FlashMessage{}
	f.mu.Unlock()
	f.notify(FlashMessage{})
}

func (f *FlashModel) set(msg string, level FlashLevel, ttl time.Duration) {
	fm := FlashMessage{Text: msg, Level: level}
	if ttl > 0 {
		fm.Expires = f.now().Add(ttl)
	}
	f.mu.Lock()
	f.current = fm
	f.mu.Unlock()
	f.notify(fm)
}

func (f *FlashModel) notify(fm FlashMessage) {
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Current returns the notice on display, if any.
func (f *FlashModel) Current() (FlashMessage, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.current.expired(f.now()) {
		return FlashMessage{}, false
	}
	return f.current, true
}

// Watch returns a channel that receives every notice change.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the line that shows the current notice.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders msg, or clears the bar when ok is false.
func (fb *FlashBar) Update(msg FlashMessage, ok bool) {
	fb.Clear()
	if !ok {
		return
	}
	_, _ = fmt.Fprint(fb, FormatFlash(msg, fb.theme))
}

// FormatFlash renders a notice with its level color. Ring notices carry a
// bell so they stand out from the timed ones.
func FormatFlash(msg FlashMessage, theme *Theme) string {
	var color, prefix string
	switch msg.Level {
	case FlashWarn:
		color = colorName(theme.FlashWarnColor)
	case FlashErr:
		color = colorName(theme.FlashErrColor)
	case FlashRing:
		color, prefix = colorName(theme.RingingColor), "(( ))  "
	default:
		color = colorName(theme.FlashInfoColor)
	}
	return fmt.Sprintf(" [%s::b]%s[::-]%s[-]", color, prefix, tview.Escape(msg.Text))
}
