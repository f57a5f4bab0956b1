package grpcserver

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/md-rashed-zaman/clinicslots/libs/grpcx"
	"github.com/md-rashed-zaman/clinicslots/libs/runtime"
)

// ServiceName is the health service name other services probe.
const ServiceName = "clinicslots.scheduling"

// Server exposes the standard gRPC health service. Its status follows the
// same dependency checks as /readyz.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	checks []runtime.ReadyCheck
	logger *slog.Logger
	every  time.Duration
}

func New(logger *slog.Logger, checks ...runtime.ReadyCheck) *Server {
	srv := grpcx.NewServer(logger)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{grpc: srv, health: hs, checks: checks, logger: logger, every: 10 * time.Second}
}

func (s *Server) GRPC() *grpc.Server {
	return s.grpc
}

// Refresh runs every check and publishes the result. It reports whether all
// checks passed.
func (s *Server) Refresh(ctx context.Context) bool {
	status := healthpb.HealthCheckResponse_SERVING
	for name, reason := range runtime.RunChecks(ctx, s.checks) {
		s.logger.Warn("grpc health check failed", "check", name, "err", reason)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
	s.health.SetServingStatus("", status)
	return status == healthpb.HealthCheckResponse_SERVING
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s.Refresh(ctx)

	go func() {
		s.logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := s.grpc.Serve(lis); err != nil {
			s.logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(s.every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
	return lis.Addr(), nil
}
