package main

import (
	"fmt"
	"net"

	"commission-observer/src/config"
	"commission-observer/src/grpc_control"
	"commission-observer/src/logger"
	"commission-observer/src/server"
)

// -----------------------------------------------------------------------------

// startServers orchestrates the startup of all server components
func startServers(srv *server.FastAPIServer, health *grpc_control.HealthReporter, config *config.Config, appLogger *logger.Logger) error {

	// 1. gRPC health. Listen first so a busy port fails startup.
	grpcAddr := fmt.Sprintf("%s:%d", config.GrpcHost, config.GrpcPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC on %s: %w", grpcAddr, err)
	}
	go func() {
		appLogger.Info("Starting gRPC health server on %s", grpcAddr)
		if err := health.Serve(lis); err != nil {
			appLogger.Error("gRPC health server failed: %v", err)
		}
	}()

	// 2. REST + WebSocket
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()
	return nil
}
