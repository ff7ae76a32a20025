package tui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/famcall/internal/call"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// CallArgs parses "<user> [audio|video]". The kind defaults to audio.
func (c Command) CallArgs() (string, call.MediaKind, error) {
	fields := strings.Fields(c.Args)
	switch len(fields) {
	case 1:
		return fields[0], call.Audio, nil
	case 2:
		kind, err := call.ParseMediaKind(strings.ToLower(fields[1]))
		if err != nil {
			return "", "", err
		}
		return fields[0], kind, nil
	default:
		return "", "", fmt.Errorf("usage: :%s <user> [audio|video]", c.Name)
	}
}
