package orchestrator

import (
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/redbco/redb-apphost/pkg/logger"
)

// statusServer exposes resource health over grpc.health.v1. Every resource
// is a service; "" is the whole application.
type statusServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	logger   *logger.Logger
}

func startStatusServer(address string, log *logger.Logger) (*statusServer, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s := &statusServer{
		server:   grpc.NewServer(),
		health:   health.NewServer(),
		listener: lis,
		logger:   log,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	go func() {
		if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
			log.Errorf("Status server stopped: %v", err)
		}
	}()
	log.Infof("Status server listening on %s", lis.Addr())
	return s, nil
}

func (s *statusServer) addr() net.Addr {
	return s.listener.Addr()
}

func (s *statusServer) set(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(service, status)
}

func (s *statusServer) stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
}
