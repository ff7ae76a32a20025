package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "famcall.v1.CallService"

// Method names.
const (
	MethodGetCall     = "GetCall"
	MethodStartCall   = "StartCall"
	MethodAcceptCall  = "AcceptCall"
	MethodEndCall     = "EndCall"
	MethodFlipCamera  = "FlipCamera"
	MethodOpenLink    = "OpenLink"
	MethodCallHistory = "CallHistory"
	MethodContacts    = "ListContacts"
	MethodThread      = "ListThread"
	MethodWatchCall   = "WatchCall"
)

// CallServer is the server API of famcall.v1.CallService. Requests and
// responses are protobuf well-known types; payload fields are documented on
// the request and response Go types in this package.
type CallServer interface {
	GetCall(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	StartCall(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcceptCall(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	EndCall(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	FlipCamera(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	OpenLink(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CallHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListContacts(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListThread(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchCall(*emptypb.Empty, grpc.ServerStream) error
}

// RegisterCallServer registers srv on s.
func RegisterCallServer(s grpc.ServiceRegistrar, srv CallServer) {
	s.RegisterService(&CallServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req proto.Message](name string, newReq func() Req, call func(CallServer, context.Context, Req) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CallServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CallServer), ctx, req.(Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newEmpty() *emptypb.Empty    { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// CallServiceDesc describes famcall.v1.CallService.
var CallServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CallServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetCall, newEmpty, CallServer.GetCall),
		unary(MethodStartCall, newStruct, CallServer.StartCall),
		unary(MethodAcceptCall, newEmpty, CallServer.AcceptCall),
		unary(MethodEndCall, newEmpty, CallServer.EndCall),
		unary(MethodFlipCamera, newEmpty, CallServer.FlipCamera),
		unary(MethodOpenLink, newStruct, CallServer.OpenLink),
		unary(MethodCallHistory, newStruct, CallServer.CallHistory),
		unary(MethodContacts, newEmpty, CallServer.ListContacts),
		unary(MethodThread, newStruct, CallServer.ListThread),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: MethodWatchCall,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(CallServer).WatchCall(in, stream)
			},
			ServerStreams: true,
		},
	},
}
