package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"finlight/internal/core"
	"finlight/internal/store"
)

const auditTimeout = 3 * time.Second

// AuditPublisher hands an audit event to whatever records it. The AMQP
// client implements it for the queued path.
type AuditPublisher interface {
	PublishAuditEvent(ctx context.Context, e core.AuditEvent) error
}

// StoreAuditPublisher writes events straight to the store.
type StoreAuditPublisher struct {
	Writer store.AuditWriter
}

func (p StoreAuditPublisher) PublishAuditEvent(ctx context.Context, e core.AuditEvent) error {
	return p.Writer.WriteAudit(ctx, e)
}

// FallbackAuditPublisher tries Primary and, when it fails, Secondary.
type FallbackAuditPublisher struct {
	Primary   AuditPublisher
	Secondary AuditPublisher
}

func (p FallbackAuditPublisher) PublishAuditEvent(ctx context.Context, e core.AuditEvent) error {
	err := p.Primary.PublishAuditEvent(ctx, e)
	if err == nil || p.Secondary == nil {
		return err
	}
	slog.WarnContext(ctx, "Primary audit publisher failed, using fallback", "error", err, "id", e.ID)
	if ferr := p.Secondary.PublishAuditEvent(ctx, e); ferr != nil {
		return errors.Join(err, ferr)
	}
	return nil
}

// recordAudit publishes e detached from the request's cancellation. Failures
// are logged and never surface to the caller.
func recordAudit(ctx context.Context, logger *slog.Logger, pub AuditPublisher, e core.AuditEvent) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := pub.PublishAuditEvent(ctx, e); err != nil {
		logger.WarnContext(ctx, "Failed to record audit event",
			"error", err,
			"module", e.Module,
			"action", e.Action,
			"business_id", e.BusinessID)
	}
}
