package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"finlight/internal/auth"
	"finlight/internal/backend"
	"finlight/internal/cli"
	"finlight/internal/config"
	"finlight/internal/core"
	apphttp "finlight/internal/http"
	"finlight/internal/log"
	"finlight/internal/ocr"
	"finlight/internal/ocr/vision"
	"finlight/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(log.ComponentApp, (*config.Config).Validate)

	bootCtx := context.Background()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(bootCtx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   cfg.JWTLeeway,
	})
	if err != nil {
		logger.Error("Failed to initialize token verifier", "error", err)
		os.Exit(1)
	}

	dashboard := services.NewDashboardService(res.Store, res.Directory, res.Audit, services.DashboardConfig{
		TopCategories:           cfg.DashboardTopCategories,
		Timeout:                 cfg.DashboardTimeout,
		TrendMonths:             cfg.DashboardTrendMonths,
		Basis:                   core.IncomeBasis(cfg.IncomeBasis),
		IncludeBankTransactions: cfg.DashboardIncludeBankTransactions,
	}, logger.WithComponent(log.ComponentDashboard).Logger)

	// A nil extractor leaves the receipt endpoint answering 503.
	var (
		extractor ocr.TextExtractor
		closeOCR  = func() error { return nil }
	)
	if cfg.OCREnabled {
		v, err := vision.New(bootCtx, logger.WithComponent(log.ComponentReceipt).Logger, 0, vision.ClientOptions(cfg.GoogleApplicationCredentials)...)
		if err != nil {
			logger.Warn("Receipt OCR unavailable", "error", err)
		} else {
			extractor, closeOCR = v, v.Close
			logger.Info("Receipt OCR enabled")
		}
	}
	receipts := services.NewReceiptService(extractor, res.Directory, res.Audit, logger.WithComponent(log.ComponentReceipt).Logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Dashboard:          dashboard,
		Receipts:           receipts,
		AuditLogs:          services.NewAuditLogService(res.Store, res.Directory, logger.WithComponent(log.ComponentAudit).Logger),
		Verifier:           verifier,
		Ready:              res.Store,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})

	ctx, done := cli.GracefulShutdown(bootCtx, logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := closeOCR(); err != nil {
			logger.Warn("Failed to close OCR client", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting finlight server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"income_basis", cfg.IncomeBasis,
		"audit_queue", cfg.AMQPURL != "",
		"ocr_enabled", receipts.Enabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
