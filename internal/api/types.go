package api

import (
	"encoding/json"
	"fmt"

	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/media"
	"github.com/matheus3301/famcall/internal/store"
	"google.golang.org/protobuf/types/known/structpb"
)

// CallInfo is the state of the daemon's call, returned by every call method
// and streamed by WatchCall.
type CallInfo struct {
	Account   string         `json:"account"`
	UserID    string         `json:"userId"`
	State     string         `json:"state"`
	SessionID string         `json:"sessionId,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Kind      call.MediaKind `json:"kind,omitempty"`
	Role      call.Role      `json:"role,omitempty"`
	Peer      *call.Profile  `json:"peer,omitempty"`
	Media     media.Snapshot `json:"media"`
	View      call.View      `json:"view"`
	Presence  string         `json:"presence,omitempty"`
	UptimeMs  int64          `json:"uptimeMs"`
	Event     string         `json:"event,omitempty"`
}

// StartCallRequest is the payload of StartCall.
type StartCallRequest struct {
	PeerID string         `json:"peer_id"`
	Kind   call.MediaKind `json:"kind"`
}

// OpenLinkRequest is the payload of OpenLink.
type OpenLinkRequest struct {
	Link string `json:"link"`
}

// CallHistoryRequest is the payload of CallHistory.
type CallHistoryRequest struct {
	Limit int `json:"limit"`
}

// CallHistoryResponse lists call records, newest first.
type CallHistoryResponse struct {
	Calls []store.Message `json:"calls"`
}

// Contact is a directory entry with the user's hub presence. PresenceKnown
// is false when no hub is configured or it could not be reached.
type Contact struct {
	call.Profile
	PresenceKnown bool  `json:"presenceKnown"`
	Online        bool  `json:"online"`
	LastSeen      int64 `json:"lastSeen,omitempty"` // unix ms
}

// ContactsResponse lists the profile directory without the local user.
type ContactsResponse struct {
	Contacts []Contact `json:"contacts"`
}

// ThreadRequest pages the chat thread with a peer. Before is a millisecond
// timestamp; zero starts from the newest message.
type ThreadRequest struct {
	PeerID string `json:"peer_id"`
	Before int64  `json:"before"`
	Limit  int    `json:"limit"`
}

// ThreadResponse holds one page of a thread, newest first.
type ThreadResponse struct {
	ChatID   string          `json:"chatId"`
	Messages []store.Message `json:"messages"`
}

// FlipCameraResponse reports the camera in use after a flip.
type FlipCameraResponse struct {
	Switched bool   `json:"switched"`
	DeviceID string `json:"deviceId,omitempty"`
	Label    string `json:"label,omitempty"`
}

// EncodeStruct encodes v as a protobuf Struct through its JSON form.
func EncodeStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// DecodeStruct decodes a protobuf Struct into v through its JSON form.
func DecodeStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}
