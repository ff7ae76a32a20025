package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PeerLookup asks the hub which users are online.
type PeerLookup struct {
	hubURL string
	token  string
	client *http.Client
}

func NewPeerLookup(hubURL, token string) *PeerLookup {
	return &PeerLookup{
		hubURL: hubURL,
		token:  token,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Presence returns the presence of each id as reported by the hub.
func (l *PeerLookup) Presence(ctx context.Context, ids []string) ([]PeerPresence, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	u, err := url.Parse(strings.TrimRight(l.hubURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path += "/v1/presence"
	u.RawQuery = url.Values{"ids": {strings.Join(ids, ",")}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.token)
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("presence lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("presence lookup: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out struct {
		Users []PeerPresence `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode presence: %w", err)
	}
	return out.Users, nil
}
