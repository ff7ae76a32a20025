// Package deeplink handles links that open the client on a ringing call,
// such as the one carried by a ring notification.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	// Scheme is the URL scheme of canonical links.
	Scheme = "famcall"
	// ActionAcceptCall opens the client on the given session.
	ActionAcceptCall = "accept_call"

	paramAction  = "action"
	paramSession = "callDocId"
)

// Parse extracts the session id from a link. Any URL, or a bare query
// string, carrying action=accept_call and a callDocId is accepted.
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty link")
	}

	var q url.Values
	if u, err := url.Parse(raw); err == nil && u.RawQuery != "" {
		q = u.Query()
	} else {
		var perr error
		if q, perr = url.ParseQuery(strings.TrimPrefix(raw, "?")); perr != nil {
			return "", fmt.Errorf("parse link: %w", perr)
		}
	}

	if action := q.Get(paramAction); action != ActionAcceptCall {
		return "", fmt.Errorf("unsupported link action %q", action)
	}
	id := q.Get(paramSession)
	if id == "" {
		return "", fmt.Errorf("link has no %s", paramSession)
	}
	return id, nil
}

// Format returns the canonical link for sessionID.
func Format(sessionID string) string {
	q := url.Values{}
	q.Set(paramAction, ActionAcceptCall)
	q.Set(paramSession, sessionID)
	return (&url.URL{Scheme: Scheme, Host: "call", RawQuery: q.Encode()}).String()
}

// Pending is a session id handed over to the next daemon start. It is
// consumed exactly once.
type Pending struct {
	path string
}

// NewPending stores the pending link at path.
func NewPending(path string) *Pending {
	return &Pending{path: path}
}

// Save records sessionID, replacing any earlier one.
func (p *Pending) Save(sessionID string) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return fmt.Errorf("create pending dir: %w", err)
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sessionID+"\n"), 0o600); err != nil {
		return fmt.Errorf("write pending link: %w", err)
	}
	return os.Rename(tmp, p.path)
}

// Consume returns the saved session id and removes it, so a restart does
// not replay it.
func (p *Pending) Consume() (string, bool, error) {
	b, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read pending link: %w", err)
	}
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", false, fmt.Errorf("clear pending link: %w", err)
	}
	id := strings.TrimSpace(string(b))
	return id, id != "", nil
}

// QR renders content as a terminal QR code. Two bitmap rows become one
// line of half-block characters.
func QR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "", fmt.Errorf("generate qr: %w", err)
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		sb.WriteString("  ")
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String(), nil
}
