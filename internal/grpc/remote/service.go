package remote

import (
	"context"

	"google.golang.org/grpc"

	"github.com/GriffinCanCode/AgentOS/terminals/internal/protocol"
)

// TerminalsServer is the server API of the remote terminal service.
type TerminalsServer interface {
	OpenTerminal(context.Context, *protocol.OpenTerminalRequest) (*protocol.OpenTerminalResponse, error)
	InputTerminal(context.Context, *protocol.InputTerminalRequest) (*protocol.Ack, error)
	CloseTerminal(context.Context, *protocol.CloseTerminalRequest) (*protocol.Ack, error)
	OutputTerminal(*protocol.OutputTerminalRequest, OutputStream) error
}

// OutputStream is the server side of an OutputTerminal call.
type OutputStream interface {
	Send(*protocol.OutputChunk) error
	Context() context.Context
}

// RegisterTerminalsServer registers srv on a gRPC server.
func RegisterTerminalsServer(s grpc.ServiceRegistrar, srv TerminalsServer) {
	s.RegisterService(&serviceDesc, srv)
}

var outputStreamDesc = grpc.StreamDesc{
	StreamName:    protocol.MethodOutputTerminal,
	Handler:       outputTerminalHandler,
	ServerStreams: true,
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: protocol.ServiceName,
	HandlerType: (*TerminalsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: protocol.MethodOpenTerminal, Handler: openTerminalHandler},
		{MethodName: protocol.MethodInputTerminal, Handler: inputTerminalHandler},
		{MethodName: protocol.MethodCloseTerminal, Handler: closeTerminalHandler},
	},
	Streams:  []grpc.StreamDesc{outputStreamDesc},
	Metadata: "agentos/terminals/v1/remote.json",
}

// unary adapts a typed method to grpc.MethodDesc.Handler.
func unary[Req any, Resp any](method string, call func(TerminalsServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TerminalsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: protocol.FullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TerminalsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	openTerminalHandler = unary(protocol.MethodOpenTerminal,
		func(s TerminalsServer, ctx context.Context, in *protocol.OpenTerminalRequest) (*protocol.OpenTerminalResponse, error) {
			return s.OpenTerminal(ctx, in)
		})
	inputTerminalHandler = unary(protocol.MethodInputTerminal,
		func(s TerminalsServer, ctx context.Context, in *protocol.InputTerminalRequest) (*protocol.Ack, error) {
			return s.InputTerminal(ctx, in)
		})
	closeTerminalHandler = unary(protocol.MethodCloseTerminal,
		func(s TerminalsServer, ctx context.Context, in *protocol.CloseTerminalRequest) (*protocol.Ack, error) {
			return s.CloseTerminal(ctx, in)
		})
)

func outputTerminalHandler(srv any, stream grpc.ServerStream) error {
	in := new(protocol.OutputTerminalRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(TerminalsServer).OutputTerminal(in, &outputServerStream{stream})
}

type outputServerStream struct {
	grpc.ServerStream
}

func (s *outputServerStream) Send(chunk *protocol.OutputChunk) error {
	return s.SendMsg(chunk)
}
