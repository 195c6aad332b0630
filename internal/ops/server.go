package ops

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Overall is the service name a health client queries for the whole process.
const Overall = ""

// HealthCheck reports whether one dependency can currently serve traffic.
type HealthCheck func(ctx context.Context) bool

// Server is the operator-facing gRPC endpoint: standard health checks plus
// reflection for grpcurl. Each registered check is published under its own
// service name; the overall status is SERVING only when every check passes.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	log    *slog.Logger

	mu     sync.Mutex
	checks map[string]HealthCheck
}

func NewServer(log *slog.Logger) *Server {
	gs := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(gs)

	return &Server{
		grpc:   gs,
		health: hs,
		log:    log,
		checks: make(map[string]HealthCheck),
	}
}

func (s *Server) AddCheck(service string, c HealthCheck) {
	s.mu.Lock()
	s.checks[service] = c
	s.mu.Unlock()
	s.health.SetServingStatus(service, healthpb.HealthCheckResponse_UNKNOWN)
}

// Check runs every check once and publishes the results.
func (s *Server) Check(ctx context.Context) {
	s.mu.Lock()
	checks := make(map[string]HealthCheck, len(s.checks))
	for name, p := range s.checks {
		checks[name] = p
	}
	s.mu.Unlock()

	all := true
	for name, p := range checks {
		status := healthpb.HealthCheckResponse_SERVING
		if !p(ctx) {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			all = false
			s.log.WarnContext(ctx, "dependency not serving", "service", name)
		}
		s.health.SetServingStatus(name, status)
	}

	if all {
		s.health.SetServingStatus(Overall, healthpb.HealthCheckResponse_SERVING)
	} else {
		s.health.SetServingStatus(Overall, healthpb.HealthCheckResponse_NOT_SERVING)
	}
}

// Watch re-runs the checks every interval until ctx is cancelled.
func (s *Server) Watch(ctx context.Context, interval time.Duration, timeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		s.Check(checkCtx)
		cancel()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// GracefulStop marks everything NOT_SERVING so load balancers drain, then stops.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
