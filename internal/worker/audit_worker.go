// Package worker drains the audit queue into the entity store.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"finlight/internal/amqp"
	"finlight/internal/core"
	"finlight/internal/store"
)

// AuditConsumer delivers queued audit events.
type AuditConsumer interface {
	ConsumeAuditEvents(ctx context.Context, handler amqp.AuditHandler) error
}

// AuditWorker appends consumed audit events to the audit log.
type AuditWorker struct {
	consumer AuditConsumer
	writer   store.AuditWriter
	logger   *slog.Logger
}

func NewAuditWorker(consumer AuditConsumer, writer store.AuditWriter, logger *slog.Logger) *AuditWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditWorker{
		consumer: consumer,
		writer:   writer,
		logger:   logger.With("component", "worker"),
	}
}

// HandleAuditEvent writes one event. Writes are idempotent on the event id,
// so redelivered messages are harmless.
func (w *AuditWorker) HandleAuditEvent(ctx context.Context, e core.AuditEvent) error {
	if err := w.writer.WriteAudit(ctx, e); err != nil {
		return fmt.Errorf("write audit event %s: %w", e.ID, err)
	}
	w.logger.DebugContext(ctx, "Audit event stored",
		"id", e.ID,
		"business_id", e.BusinessID,
		"module", e.Module,
		"action", e.Action)
	return nil
}

// Run consumes until ctx is cancelled.
func (w *AuditWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Audit worker started")
	err := w.consumer.ConsumeAuditEvents(ctx, w.HandleAuditEvent)
	if ctx.Err() != nil {
		w.logger.InfoContext(ctx, "Audit worker stopped")
		return nil
	}
	return err
}
