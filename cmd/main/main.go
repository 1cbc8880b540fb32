package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"commission-observer/src/config"
	"commission-observer/src/dashboard"
	"commission-observer/src/grpc_control"
	"commission-observer/src/logger"
	"commission-observer/src/observability"
	"commission-observer/src/server"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// -----------------------------------------------------------------------------

func main() {
	// 1. Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	flag.Parse()

	// 2. Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// 3. Setup Logger
	appLogger := logger.NewLogger(conf.MConfig, conf.Name)

	// 4. Setup Components
	db, err := setupDatabase(conf.MConfig, appLogger)
	if err != nil {
		os.Exit(1)
	}
	tokens, tokenCloser := setupTokenStore(conf.MConfig, appLogger)
	pub := setupPublisher(conf.MConfig, appLogger)

	metrics := observability.NewPromMetrics(nil)
	health := grpc_control.NewHealthReporter(logger.NewLogger(conf.MConfig, "HealthReporter"))

	opts := []dashboard.Option{
		dashboard.WithMetrics(metrics),
		dashboard.WithStateReporter(health),
	}
	if db != nil {
		opts = append(opts, dashboard.WithDatabase(db))
	}
	if tokens != nil {
		opts = append(opts, dashboard.WithTokenStore(tokens))
	}
	if pub != nil {
		opts = append(opts, dashboard.WithPublisher(pub))
	}
	service := dashboard.NewService(conf, logger.NewLogger(conf.MConfig, "Dashboard"), opts...)

	// 5. The server reads reports from the service; the service pushes into it.
	srv := server.NewFastAPIServer(conf.MConfig, logger.NewLogger(conf.MConfig, "FastAPIServer"), service, promhttp.Handler())
	service.SetExchanger(srv)

	// 6. Start Servers
	if err := startServers(srv, health, conf, appLogger); err != nil {
		appLogger.Critical("%v", err)
	}

	// Lifecycle Management
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. First connect + refresh. Run keeps retrying if this fails.
	if err := service.Start(ctx); err != nil {
		appLogger.Error("Initial connection failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		service.Run(ctx)
	}()

	// 8. Watch the config; credentials changes rebuild the session.
	go func() {
		defer wg.Done()
		var mu sync.Mutex
		current := conf
		err := config.Watch(ctx, logger.NewLogger(conf.MConfig, "ConfigWatcher"), *configPath, func(next *config.Config) {
			mu.Lock()
			defer mu.Unlock()
			if next.ConnectionConfig().SameCredentials(current.ConnectionConfig()) {
				current = next
				return
			}
			current = next
			appLogger.Info("Connection settings changed, reconnecting")
			if err := service.Reconnect(ctx, next); err != nil {
				appLogger.Error("Reconnect with new settings failed: %v", err)
			}
		})
		if err != nil {
			appLogger.Warning("Config watcher stopped: %v", err)
		}
	}()

	appLogger.Info("Commission observer running")
	<-ctx.Done()

	// 9. Shutdown
	appLogger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	service.Stop()
	wg.Wait()
	if err := srv.Stop(shutdownCtx); err != nil {
		appLogger.Warning("Server shutdown: %v", err)
	}
	health.Stop()

	closers := []io.Closer{pub, db, tokenCloser}
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			appLogger.Warning("Close: %v", err)
		}
	}
}
