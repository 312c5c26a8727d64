package api

import (
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReplicaService is the health service name reported next to the overall
// ("") status.
const ReplicaService = "hierachain.Replica"

// AdminServer is a gRPC server exposing the standard health service. The
// replica starts NOT_SERVING and flips to SERVING once its fabrics are up.
type AdminServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	running    bool
	mu         sync.Mutex
}

// NewAdminServer creates an admin server in NOT_SERVING state.
func NewAdminServer() *AdminServer {
	hs := health.NewServer()
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &AdminServer{grpcServer: gs, health: hs}
	s.SetServing(false)
	return s
}

// SetServing updates the reported status of the replica.
func (s *AdminServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ReplicaService, status)
}

// Listen binds the server to address without serving yet.
func (s *AdminServer) Listen(address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.listener != nil {
		return fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *AdminServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve serves on the listener bound by Listen (blocking).
func (s *AdminServer) Serve() error {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return fmt.Errorf("server is not listening")
	}
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	lis := s.listener
	s.mu.Unlock()

	return s.grpcServer.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *AdminServer) Stop() {
	s.health.Shutdown()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running && s.listener != nil {
		_ = s.listener.Close()
	}
	s.running = false
	s.grpcServer.GracefulStop()
}
