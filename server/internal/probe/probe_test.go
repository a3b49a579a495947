package probe_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/drafftink/relay/server/internal/auth"
	"github.com/drafftink/relay/server/internal/probe"
)

// startProbe starts a probe server on a random TCP port and returns a
// connected health client.
func startProbe(t *testing.T, guard *auth.Guard) (healthpb.HealthClient, *probe.Server) {
	t.Helper()

	srv := probe.New(guard)
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(lis) //nolint:errcheck

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	conn, err := grpc.Dial(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	) //nolint:staticcheck
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return healthpb.NewHealthClient(conn), srv
}

func check(t *testing.T, c healthpb.HealthClient, ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

func TestProbe_ServingTransitions(t *testing.T) {
	c, srv := startProbe(t, nil)
	ctx := context.Background()

	for _, svc := range []string{"", probe.Service} {
		got, err := check(t, c, ctx, svc)
		if err != nil {
			t.Fatalf("Check(%q): %v", svc, err)
		}
		if got != healthpb.HealthCheckResponse_NOT_SERVING {
			t.Errorf("Check(%q) before start: got %v, want NOT_SERVING", svc, got)
		}
	}

	srv.SetServing(true)
	if got, _ := check(t, c, ctx, probe.Service); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("after SetServing(true): got %v, want SERVING", got)
	}

	srv.SetServing(false)
	if got, _ := check(t, c, ctx, ""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("after SetServing(false): got %v, want NOT_SERVING", got)
	}
}

func TestProbe_UnknownService(t *testing.T) {
	c, _ := startProbe(t, nil)
	_, err := check(t, c, context.Background(), "nope")
	if code := status.Code(err); code != codes.NotFound {
		t.Errorf("code: got %v, want NotFound", code)
	}
}

func TestProbe_APIKey(t *testing.T) {
	c, srv := startProbe(t, auth.NewGuard("apikey", "x-api-key", "secret"))
	srv.SetServing(true)

	_, err := check(t, c, context.Background(), "")
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("without key: got %v, want Unauthenticated", code)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "secret")
	got, err := check(t, c, ctx, "")
	if err != nil {
		t.Fatalf("with key: %v", err)
	}
	if got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("with key: got %v, want SERVING", got)
	}
}

func TestProbe_StopEndsWatch(t *testing.T) {
	c, srv := startProbe(t, nil)
	srv.SetServing(true)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stream, err := c.Watch(ctx, &healthpb.HealthCheckRequest{Service: probe.Service})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	first, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if first.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("first status: got %v, want SERVING", first.GetStatus())
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer stopCancel()
	srv.Stop(stopCtx)

	// The stream sees NOT_SERVING or is cut off; either way it must not hang.
	for {
		resp, err := stream.Recv()
		if err != nil {
			return
		}
		if resp.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING {
			return
		}
	}
}
