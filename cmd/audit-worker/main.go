package main

import (
	"context"
	"os"

	"finlight/internal/amqp"
	"finlight/internal/backend"
	"finlight/internal/cli"
	"finlight/internal/config"
	"finlight/internal/log"
	"finlight/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentWorker, (*config.Config).ValidateWorker)

	logger.Info("Starting audit-worker", "backend", cfg.DataBackend, "queue", cfg.AMQPQueue)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	// The worker only writes; it neither publishes nor resolves businesses.
	backendCfg.AMQPURL = ""
	backendCfg.DirectoryCacheSize = 0

	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		_ = res.Cleanup()
		os.Exit(1)
	}
	amqpClient.SetPrefetch(cfg.AuditBatchSize)

	w := worker.NewAuditWorker(amqpClient, res.Store, logger.WithComponent(log.ComponentWorker).Logger)

	ctx, done := cli.GracefulShutdown(context.Background(), logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := amqpClient.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", "error", err)
		}
	})

	if err := w.Run(ctx); err != nil {
		logger.Error("Audit worker failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Audit worker stopped gracefully")
}
