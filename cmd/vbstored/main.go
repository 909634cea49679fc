package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/epcore/vbstore/internal/config"
	"github.com/epcore/vbstore/internal/engine"
	"github.com/epcore/vbstore/internal/health"
	"github.com/epcore/vbstore/internal/metrics"
	"github.com/epcore/vbstore/internal/server"
)

func main() {
	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("node_id", cfg.Server.NodeID),
		zap.Int("shard_id", cfg.Engine.ShardID),
		zap.Int("max_shards", cfg.Engine.MaxShards))

	m := metrics.NewMetrics(cfg.Server.NodeID)

	eng, err := engine.New(cfg, logger, m)
	if err != nil {
		logger.Fatal("Failed to initialize persistence engine", zap.Error(err))
	}

	logger.Info("Recovering vbuckets owned by this shard")
	if err := eng.Recover(); err != nil {
		logger.Fatal("Failed to recover vbuckets", zap.Error(err))
	}

	healthChecker := health.NewHealthChecker(&health.HealthCheckConfig{
		NodeID:  cfg.Server.NodeID,
		DataDir: cfg.Engine.DBName,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go healthChecker.Start(ctx)

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = server.NewMetricsServer(&server.MetricsServerConfig{
			Port:    cfg.Metrics.Port,
			DataDir: cfg.Engine.DBName,
		}, m, logger)
		if err := metricsServer.Start(); err != nil {
			logger.Fatal("Failed to start metrics server", zap.Error(err))
		}
	}

	// This process only exposes the persistence engine's programmatic
	// surface and its ops endpoints. The wire protocol other services use
	// to reach a vBucket, and cluster membership/rebalancing, are handled
	// by separate processes entirely.
	logger.Info("vbstored ready", zap.String("node_id", cfg.Server.NodeID))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	healthChecker.SetReadiness(false)
	cancel()

	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Warn("Metrics server did not shut down cleanly", zap.Error(err))
		}
	}

	if err := eng.Close(); err != nil {
		logger.Error("Failed to close persistence engine cleanly", zap.Error(err))
	}
}

// initLogger initializes the zap logger.
func initLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	return cfg.Build()
}
