package grpc_control

import (
	"fmt"
	"net"

	"commission-observer/src/logger"
	"commission-observer/src/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SessionService is the health service name that tracks the platform session.
const SessionService = "commission.Session"

// HealthReporter exposes the session state through the standard gRPC health
// protocol: SERVING only while the session is authorized.
type HealthReporter struct {
	Logger *logger.Logger
	health *health.Server
	server *grpc.Server
}

// -----------------------------------------------------------------------------

func NewHealthReporter(log *logger.Logger) *HealthReporter {
	grpcServer := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)

	r := &HealthReporter{Logger: log, health: healthSrv, server: grpcServer}
	r.SetSessionState(models.StateIdle)
	return r
}

// -----------------------------------------------------------------------------

// SetSessionState maps a session state to a serving status for both the
// session service and the server as a whole.
func (r *HealthReporter) SetSessionState(state models.SessionState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == models.StateAuthorized {
		status = healthpb.HealthCheckResponse_SERVING
	}
	r.health.SetServingStatus(SessionService, status)
	r.health.SetServingStatus("", status)
}

// -----------------------------------------------------------------------------

// Serve blocks serving gRPC on lis.
func (r *HealthReporter) Serve(lis net.Listener) error {
	r.Logger.Info("Starting gRPC health server on %s", lis.Addr())
	if err := r.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop marks everything NOT_SERVING and drains the server.
func (r *HealthReporter) Stop() {
	r.health.Shutdown()
	r.server.GracefulStop()
}
