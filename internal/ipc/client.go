package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// Send performs one control request/response roundtrip with a deadline.
func Send(ctx context.Context, path string, req Request, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := checkSocket(ctx, path); err != nil {
		return Response{}, err
	}
	conn, err := dial(ctx, path)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	in, err := toStruct(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := conn.Invoke(ctx, handleMethod, in, out); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := fromStruct(out, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// Probe checks whether a responsive owner is currently listening on path.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := checkSocket(ctx, path); err != nil {
		if isSocketMissing(err) || isConnectionRefused(err) {
			return false, nil
		}
		return false, fmt.Errorf("probe socket: %w", err)
	}

	conn, err := dial(ctx, path)
	if err != nil {
		return false, fmt.Errorf("probe socket: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		return false, fmt.Errorf("probe socket: %w", err)
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

// checkSocket fails fast on absent or unowned sockets; gRPC would otherwise
// retry until the deadline.
func checkSocket(ctx context.Context, path string) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	return conn.Close()
}

func dial(ctx context.Context, path string) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		"unix://"+path,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial IPC socket %q: %w", path, err)
	}

	conn.Connect()
	if err := waitForReady(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("wait for IPC readiness: %w", err)
	}
	return conn, nil
}

// waitForReady blocks until gRPC connection enters Ready or fails.
func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("grpc connection entered shutdown state")
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("grpc readiness wait timed out in state %s", state.String())
		}
	}
}

// isSocketMissing reports absent-socket failures.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsNotRunning reports whether err means no daemon owns the socket.
func IsNotRunning(err error) bool {
	return isSocketMissing(err) || isConnectionRefused(err)
}
