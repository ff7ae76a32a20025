package api

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/famcall/internal/bus"
	"github.com/matheus3301/famcall/internal/call"
	"github.com/matheus3301/famcall/internal/deeplink"
	"github.com/matheus3301/famcall/internal/media"
	"github.com/matheus3301/famcall/internal/push"
	"github.com/matheus3301/famcall/internal/status"
	"github.com/matheus3301/famcall/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	defaultHistoryLimit = 50
	endCallTimeout      = 10 * time.Second
)

// Calls is the signaling side of the daemon.
type Calls interface {
	StartCall(ctx context.Context, peerID string, kind call.MediaKind) (call.Outgoing, bool, error)
	AcceptCall(ctx context.Context) (call.Active, bool, error)
	EndCall(ctx context.Context) (call.Call, bool)
	Bootstrap(ctx context.Context, sessionID string) (call.Incoming, bool, error)
}

// Media is the media side of the daemon.
type Media interface {
	Snapshot() media.Snapshot
	FlipCamera(ctx context.Context) (media.Device, bool, error)
}

// Peers reports which users are connected to the push hub.
type Peers interface {
	Presence(ctx context.Context, ids []string) ([]push.PeerPresence, error)
}

// CallService implements famcall.v1.CallService.
type CallService struct {
	account   string
	self      string
	startedAt time.Time
	machine   *call.Machine
	calls     Calls
	media     Media
	db        *store.DB
	bus       *bus.Bus
	presence  *status.Machine
	peers     Peers
	logger    *zap.Logger
}

var _ CallServer = (*CallService)(nil)

// NewCallService creates the service. db and m may be nil, in which case
// the methods that need them report Unavailable.
func NewCallService(account, self string, machine *call.Machine, calls Calls, m Media, db *store.DB, b *bus.Bus, logger *zap.Logger) *CallService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallService{
		account:   account,
		self:      self,
		startedAt: time.Now(),
		machine:   machine,
		calls:     calls,
		media:     m,
		db:        db,
		bus:       b,
		logger:    logger,
	}
}

// SetPresence adds the push hub connection state to every CallInfo.
func (s *CallService) SetPresence(m *status.Machine) {
	s.presence = m
}

// SetPeers makes ListContacts report each contact's presence.
func (s *CallService) SetPeers(p Peers) {
	s.peers = p
}

func (s *CallService) info(event string) CallInfo {
	c := s.machine.Current()
	info := CallInfo{
		Account:  s.account,
		UserID:   s.self,
		State:    c.State().String(),
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
		Event:    event,
	}
	if s.media != nil {
		info.Media = s.media.Snapshot()
	}
	if s.presence != nil {
		info.Presence = string(s.presence.Current())
	}
	if d, ok := call.DetailsOf(c); ok {
		peer := d.Peer
		info.SessionID = d.SessionID
		info.Channel = d.ChannelName
		info.Kind = d.Kind
		info.Peer = &peer
	}
	if act, ok := c.(call.Active); ok {
		info.Role = act.Role
	}
	// Media state belongs to a previous session until the controller
	// catches up with the machine.
	joined := info.Media.Joined && info.Media.SessionID == info.SessionID
	info.View = call.Describe(c, joined, info.Media.Duration, info.Media.Cameras)
	return info
}

func (s *CallService) reply(event string) (*structpb.Struct, error) {
	out, err := EncodeStruct(s.info(event))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func (s *CallService) GetCall(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return s.reply("")
}

func (s *CallService) StartCall(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req StartCallRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.Kind == "" {
		req.Kind = call.Audio
	}
	kind, err := call.ParseMediaKind(string(req.Kind))
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.PeerID == "" || req.PeerID == s.self {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "invalid peer %q", req.PeerID)
	}

	_, ok, err := s.calls.StartCall(ctx, req.PeerID, kind)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "start call: %v", err)
	}
	if !ok {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "cannot start a call while %s", s.machine.Current().State())
	}
	return s.reply("")
}

func (s *CallService) AcceptCall(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	_, ok, err := s.calls.AcceptCall(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "accept call: %v", err)
	}
	if !ok {
		if _, active := s.machine.Current().(call.Active); !active {
			return nil, grpcstatus.Errorf(codes.FailedPrecondition, "no incoming call")
		}
	}
	return s.reply("")
}

// EndCall hangs up even when the caller goes away mid-request, so the peer
// stops ringing.
func (s *CallService) EndCall(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endCallTimeout)
	defer cancel()
	s.calls.EndCall(endCtx)
	return s.reply("")
}

func (s *CallService) FlipCamera(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.media == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "media not initialized")
	}
	dev, switched, err := s.media.FlipCamera(ctx)
	switch {
	case errors.Is(err, media.ErrNotJoined):
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "%v", err)
	case err != nil:
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	out, err := EncodeStruct(FlipCameraResponse{Switched: switched, DeviceID: dev.ID, Label: dev.Label})
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func (s *CallService) OpenLink(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req OpenLinkRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	sessionID, err := deeplink.Parse(req.Link)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	_, ok, err := s.calls.Bootstrap(ctx, sessionID)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "open link: %v", err)
	}
	if !ok && call.SessionIDOf(s.machine.Current()) != sessionID {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "call %s is not ringing here", sessionID)
	}
	return s.reply("")
}

func (s *CallService) CallHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.db == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "store not initialized")
	}
	var req CallHistoryRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.Limit <= 0 {
		req.Limit = defaultHistoryLimit
	}
	msgs, err := s.db.CallHistory(ctx, s.self, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "call history: %v", err)
	}
	out, err := EncodeStruct(CallHistoryResponse{Calls: msgs})
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

func (s *CallService) ListContacts(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.db == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "store not initialized")
	}
	all, err := s.db.Profiles(ctx)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list contacts: %v", err)
	}
	resp := ContactsResponse{Contacts: make([]Contact, 0, len(all))}
	ids := make([]string, 0, len(all))
	for _, p := range all {
		if p.ID != s.self {
			resp.Contacts = append(resp.Contacts, Contact{Profile: p})
			ids = append(ids, p.ID)
		}
	}
	s.addPresence(ctx, resp.Contacts, ids)
	out, err := EncodeStruct(resp)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

// addPresence fills in presence from the hub. A lookup failure leaves the
// contacts without presence rather than failing the listing.
func (s *CallService) addPresence(ctx context.Context, contacts []Contact, ids []string) {
	if s.peers == nil || len(ids) == 0 {
		return
	}
	found, err := s.peers.Presence(ctx, ids)
	if err != nil {
		s.logger.Warn("presence lookup failed", zap.Error(err))
		return
	}
	byID := make(map[string]push.PeerPresence, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	for i := range contacts {
		if p, ok := byID[contacts[i].ID]; ok {
			contacts[i].PresenceKnown = true
			contacts[i].Online = p.Online
			contacts[i].LastSeen = p.LastSeen
		}
	}
}

func (s *CallService) ListThread(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	if s.db == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "store not initialized")
	}
	var req ThreadRequest
	if err := DecodeStruct(in, &req); err != nil {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "%v", err)
	}
	if req.PeerID == "" || req.PeerID == s.self {
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "invalid peer %q", req.PeerID)
	}
	if req.Limit <= 0 {
		req.Limit = defaultHistoryLimit
	}
	chatID := call.ChatID(s.self, req.PeerID)
	msgs, err := s.db.ListMessages(ctx, chatID, req.Before, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "list thread: %v", err)
	}
	out, err := EncodeStruct(ThreadResponse{ChatID: chatID, Messages: msgs})
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "%v", err)
	}
	return out, nil
}

// WatchCall sends the current call state, then a new one for every call or
// media event.
func (s *CallService) WatchCall(_ *emptypb.Empty, stream grpc.ServerStream) error {
	ch, unsub := s.bus.Subscribe(64, "call.", "media.", "presence.")
	defer unsub()

	send := func(event string) error {
		out, err := s.reply(event)
		if err != nil {
			return err
		}
		return stream.SendMsg(out)
	}
	if err := send(""); err != nil {
		return err
	}
	for {
		select {
		case evt := <-ch:
			if err := send(evt.Kind); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}
