package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finlight/internal/core"
	"finlight/internal/ocr"
	"finlight/internal/store"
)

// MaxReceiptBytes bounds an uploaded receipt image.
const MaxReceiptBytes = 10 << 20

// ReceiptService reads receipts for members of a business. Results are
// returned to the caller and never stored.
type ReceiptService struct {
	extractor ocr.TextExtractor
	directory store.BusinessDirectory
	audit     AuditPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewReceiptService returns a service that reports ErrDependencyUnavailable
// for every request when extractor is nil.
func NewReceiptService(extractor ocr.TextExtractor, directory store.BusinessDirectory, audit AuditPublisher, logger *slog.Logger) *ReceiptService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptService{
		extractor: extractor,
		directory: directory,
		audit:     audit,
		logger:    logger.With("component", "receipt"),
		now:       time.Now,
	}
}

func (s *ReceiptService) Enabled() bool {
	return s != nil && s.extractor != nil
}

func (s *ReceiptService) ProcessReceipt(ctx context.Context, userID, businessID uuid.UUID, image []byte) (ocr.ReceiptProcessingResult, error) {
	if !s.Enabled() {
		return ocr.ReceiptProcessingResult{}, fmt.Errorf("%w: receipt OCR is disabled", core.ErrDependencyUnavailable)
	}
	if businessID == uuid.Nil {
		return ocr.ReceiptProcessingResult{}, fmt.Errorf("%w: businessId is required", core.ErrInvalidArgument)
	}
	if len(image) == 0 {
		return ocr.ReceiptProcessingResult{}, fmt.Errorf("%w: receipt image is empty", core.ErrInvalidArgument)
	}
	if len(image) > MaxReceiptBytes {
		return ocr.ReceiptProcessingResult{}, fmt.Errorf("%w: receipt image exceeds %d bytes", core.ErrInvalidArgument, MaxReceiptBytes)
	}

	if _, _, err := authorize(ctx, s.directory, userID, businessID); err != nil {
		return ocr.ReceiptProcessingResult{}, err
	}

	start := time.Now()
	text, err := s.extractor.ExtractText(ctx, image)
	if err != nil {
		return ocr.ReceiptProcessingResult{}, dependencyError("extract receipt text", err)
	}
	result := ocr.ParseReceipt(text)

	s.logger.InfoContext(ctx, "Receipt processed",
		"business_id", businessID,
		"bytes", len(image),
		"vendor", result.Vendor,
		"items", len(result.Items),
		"confidence", result.Confidence.String(),
		"duration_ms", time.Since(start).Milliseconds())

	recordAudit(ctx, s.logger, s.audit,
		core.NewAuditEvent(userID, businessID, core.ModuleReceipt, core.ActionProcess, result.Vendor, s.now()))

	return result, nil
}
