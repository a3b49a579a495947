package probe

import (
	"context"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/drafftink/relay/server/internal/auth"
)

// Service is the health service name reported alongside the overall status.
const Service = "relay"

// Server is a gRPC server exposing only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// New creates a Server whose calls are checked by guard. A nil guard allows
// everything. Status starts as NOT_SERVING until SetServing(true).
func New(guard *auth.Guard) *Server {
	if guard == nil {
		guard = auth.NewGuard("none", "", "")
	}
	srv := grpc.NewServer(
		grpc.UnaryInterceptor(guard.UnaryInterceptor()),
		grpc.StreamInterceptor(guard.StreamInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{grpc: srv, health: hs}
	s.SetServing(false)
	return s
}

// SetServing updates the reported status of the overall server and of
// Service.
func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if ok {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(Service, st)
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	slog.Info("probe: gRPC health listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and gracefully stops the server.
// Open Watch streams keep GracefulStop waiting, so when ctx expires the
// server is stopped hard.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
}
