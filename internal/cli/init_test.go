package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"finlight/internal/config"
	"finlight/internal/log"
)

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&config.Config{LogLevel: "warn", LogFormat: "json"}, log.ComponentWorker, &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info logged at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"component":"worker"`) {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestSetupLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupLogger(&config.Config{LogLevel: "chatty"}, log.ComponentApp, &buf)
	logger.Debug("hidden")
	logger.Info("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestGracefulShutdownRunsCleanupOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf})

	parent, cancel := context.WithCancel(context.Background())
	calls := 0
	ctx, done := GracefulShutdown(parent, logger, time.Second, func(context.Context) { calls++ })

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	if ctx.Err() == nil {
		t.Error("returned context not cancelled")
	}
	if calls != 1 {
		t.Fatalf("cleanup ran %d times", calls)
	}
}
