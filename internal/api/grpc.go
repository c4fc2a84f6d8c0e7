package api

import (
	"fmt"
	"net"
	"sync/atomic"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC service name reported by the health server.
const HealthService = "crosswalk.Assistant"

// HealthServer exposes the standard gRPC health protocol so that
// orchestrators can health-check the assistant.
type HealthServer struct {
	server  *grpc.Server
	health  *health.Server
	log     zerolog.Logger
	running atomic.Bool
}

// NewHealthServer builds a health server reporting SERVING.
func NewHealthServer(l zerolog.Logger) *HealthServer {
	h := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, h)
	h.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	return &HealthServer{server: srv, health: h, log: l}
}

// SetServing flips the reported status of the assistant service.
func (s *HealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, status)
}

// Serve accepts connections on lis until Stop.
func (s *HealthServer) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("health server already running")
	}
	s.log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	if err := s.server.Serve(lis); err != nil && s.running.Load() {
		return fmt.Errorf("gRPC health server: %w", err)
	}
	return nil
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *HealthServer) Stop() {
	s.running.Store(false)
	s.health.Shutdown()
	s.server.GracefulStop()
}
