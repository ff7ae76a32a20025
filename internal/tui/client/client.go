package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/famcall/internal/api"
	"github.com/matheus3301/famcall/internal/call"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// NewFromConn wraps an existing connection.
func NewFromConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func method(name string) string {
	return "/" + api.ServiceName + "/" + name
}

func (c *Client) invoke(ctx context.Context, name string, req proto.Message, out any) error {
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method(name), req, resp); err != nil {
		return err
	}
	return api.DecodeStruct(resp, out)
}

func (c *Client) callInfo(ctx context.Context, name string, req proto.Message) (*api.CallInfo, error) {
	var info api.CallInfo
	if err := c.invoke(ctx, name, req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func encode(v any) (*structpb.Struct, error) {
	return api.EncodeStruct(v)
}

func (c *Client) GetCall(ctx context.Context) (*api.CallInfo, error) {
	return c.callInfo(ctx, api.MethodGetCall, &emptypb.Empty{})
}

func (c *Client) StartCall(ctx context.Context, peerID string, kind call.MediaKind) (*api.CallInfo, error) {
	req, err := encode(api.StartCallRequest{PeerID: peerID, Kind: kind})
	if err != nil {
		return nil, err
	}
	return c.callInfo(ctx, api.MethodStartCall, req)
}

func (c *Client) AcceptCall(ctx context.Context) (*api.CallInfo, error) {
	return c.callInfo(ctx, api.MethodAcceptCall, &emptypb.Empty{})
}

func (c *Client) EndCall(ctx context.Context) (*api.CallInfo, error) {
	return c.callInfo(ctx, api.MethodEndCall, &emptypb.Empty{})
}

func (c *Client) FlipCamera(ctx context.Context) (*api.FlipCameraResponse, error) {
	var out api.FlipCameraResponse
	if err := c.invoke(ctx, api.MethodFlipCamera, &emptypb.Empty{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OpenLink(ctx context.Context, link string) (*api.CallInfo, error) {
	req, err := encode(api.OpenLinkRequest{Link: link})
	if err != nil {
		return nil, err
	}
	return c.callInfo(ctx, api.MethodOpenLink, req)
}

func (c *Client) CallHistory(ctx context.Context, limit int) (*api.CallHistoryResponse, error) {
	req, err := encode(api.CallHistoryRequest{Limit: limit})
	if err != nil {
		return nil, err
	}
	var out api.CallHistoryResponse
	if err := c.invoke(ctx, api.MethodCallHistory, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListContacts(ctx context.Context) (*api.ContactsResponse, error) {
	var out api.ContactsResponse
	if err := c.invoke(ctx, api.MethodContacts, &emptypb.Empty{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListThread(ctx context.Context, peerID string, before int64, limit int) (*api.ThreadResponse, error) {
	req, err := encode(api.ThreadRequest{PeerID: peerID, Before: before, Limit: limit})
	if err != nil {
		return nil, err
	}
	var out api.ThreadResponse
	if err := c.invoke(ctx, api.MethodThread, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WatchCall calls fn with each call state the daemon streams until ctx ends
// or the stream fails.
func (c *Client) WatchCall(ctx context.Context, fn func(*api.CallInfo)) error {
	desc := &api.CallServiceDesc.Streams[0]
	stream, err := c.conn.NewStream(ctx, desc, method(api.MethodWatchCall))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		resp := new(structpb.Struct)
		if err := stream.RecvMsg(resp); err != nil {
			return err
		}
		var info api.CallInfo
		if err := api.DecodeStruct(resp, &info); err != nil {
			return err
		}
		fn(&info)
	}
}
