package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName  = "audiomon.v1.Control"
	handleMethod = "/audiomon.v1.Control/Handle"
)

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

type controlServer interface {
	handle(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*controlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handle", Handler: handleRPC},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "audiomon/v1/control.proto",
}

func handleRPC(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(controlServer).handle(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: handleMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(controlServer).handle(ctx, req.(*structpb.Struct))
	})
}

type server struct {
	handler Handler
}

func (s *server) handle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req Request
	if err := fromStruct(in, &req); err != nil {
		return toStruct(Response{OK: false, Error: fmt.Sprintf("decode request: %v", err)})
	}
	return toStruct(s.handler.Handle(ctx, req))
}

// Serve answers control requests on listener until context cancellation.
// In-flight requests finish before Serve returns.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	srv := grpc.NewServer()
	srv.RegisterService(&controlServiceDesc, &server{handler: handler})

	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	serveDone := make(chan error, 1)
	go func() { serveDone <- srv.Serve(listener) }()

	select {
	case <-ctx.Done():
		hs.Shutdown()
		srv.GracefulStop()
		<-serveDone
		return nil
	case err := <-serveDone:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) || errors.Is(err, net.ErrClosed) {
			return nil
		}
		return fmt.Errorf("serve IPC: %w", err)
	}
}
