package tui

import (
	"testing"

	"github.com/matheus3301/famcall/internal/call"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input string
		want  Command
	}{
		{"quit", Command{Name: "quit"}},
		{"  Call u2 video ", Command{Name: "call", Args: "u2 video"}},
		{"open famcall://call?action=accept_call&callDocId=x", Command{Name: "open", Args: "famcall://call?action=accept_call&callDocId=x"}},
		{"", Command{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCommand(tt.input))
		})
	}
}

func TestCallArgs(t *testing.T) {
	peer, kind, err := ParseCommand("call u2").CallArgs()
	require.NoError(t, err)
	assert.Equal(t, "u2", peer)
	assert.Equal(t, call.Audio, kind)

	peer, kind, err = ParseCommand("call u3 VIDEO").CallArgs()
	require.NoError(t, err)
	assert.Equal(t, "u3", peer)
	assert.Equal(t, call.Video, kind)

	_, _, err = ParseCommand("call u3 hologram").CallArgs()
	assert.Error(t, err)

	_, _, err = ParseCommand("call").CallArgs()
	assert.ErrorContains(t, err, "usage: :call")
}
