package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
)

func TestHandleEventPrefersView(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal("quit", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "global" }})
	r.AddView("history", "back", &Action{Key: tcell.KeyRune, Rune: 'q', Handler: func() { got = "view" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)
	assert.True(t, r.HandleEvent("history", ev))
	assert.Equal(t, "view", got)

	assert.True(t, r.HandleEvent("call", ev))
	assert.Equal(t, "global", got)

	assert.False(t, r.HandleEvent("call", tcell.NewEventKey(tcell.KeyRune, 'z', tcell.ModNone)))
}

func TestDisabledActions(t *testing.T) {
	r := NewRegistry()
	ringing := false
	fired := false
	r.AddView("call", "accept", &Action{
		Key: tcell.KeyRune, Rune: 'a', Label: "a", Description: "Accept", Visible: true,
		Handler: func() { fired = true },
		Enabled: func() bool { return ringing },
	})
	r.AddGlobal("help", &Action{Key: tcell.KeyRune, Rune: '?', Label: "?", Description: "Help", Visible: true, Handler: func() {}})

	ev := tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone)
	assert.False(t, r.HandleEvent("call", ev))
	assert.False(t, fired)
	assert.Len(t, r.Hints("call"), 1)

	ringing = true
	assert.True(t, r.HandleEvent("call", ev))
	assert.True(t, fired)

	hints := r.Hints("call")
	if assert.Len(t, hints, 2) {
		assert.Equal(t, "a", hints[0].Key)
		assert.Equal(t, "?", hints[1].Key)
	}
}
