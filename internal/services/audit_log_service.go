package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"finlight/internal/core"
	"finlight/internal/store"
)

const (
	DefaultAuditLimit = 20
	MaxAuditLimit     = 100
)

// ParseAuditLimit reads the page size of an audit trail request. Blank means
// DefaultAuditLimit.
func ParseAuditLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAuditLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > MaxAuditLimit {
		return 0, fmt.Errorf("%w: limit must be an integer between 1 and %d", core.ErrInvalidArgument, MaxAuditLimit)
	}
	return n, nil
}

// AuditLogService serves a business's audit trail to its members.
type AuditLogService struct {
	trail     store.AuditReader
	directory store.BusinessDirectory
	logger    *slog.Logger
}

func NewAuditLogService(trail store.AuditReader, directory store.BusinessDirectory, logger *slog.Logger) *AuditLogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogService{
		trail:     trail,
		directory: directory,
		logger:    logger.With("component", "audit"),
	}
}

// List returns at most limit events of businessID, newest first.
func (s *AuditLogService) List(ctx context.Context, userID, businessID uuid.UUID, limit int) ([]core.AuditEvent, error) {
	if limit < 1 || limit > MaxAuditLimit {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", core.ErrInvalidArgument, MaxAuditLimit)
	}
	if _, _, err := authorize(ctx, s.directory, userID, businessID); err != nil {
		return nil, err
	}

	events, err := s.trail.ListAudit(ctx, businessID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Audit trail read failed", "business_id", businessID, "error", err)
		return nil, dependencyError("list audit", err)
	}
	return events, nil
}
