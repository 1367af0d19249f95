package main

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func TestHealthServiceFollowsStore(t *testing.T) {
	var down atomic.Bool
	ping := func(context.Context) error {
		if down.Load() {
			return errors.New("no reachable servers")
		}
		return nil
	}

	hs := newHealthService(ping, zerolog.Nop())

	// set up bufconn server
	lis := bufconn.Listen(bufSize)
	go func() {
		_ = hs.serve(lis)
	}()
	defer hs.stop()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	hs.check(ctx)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: healthServiceName})
	if err != nil {
		t.Fatalf("Check RPC failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", resp.GetStatus())
	}

	down.Store(true)
	hs.check(ctx)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check RPC failed: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", resp.GetStatus())
	}
}
