package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"finlight/internal/core"
	"finlight/internal/store"
)

// DashboardConfig tunes the summary computation.
type DashboardConfig struct {
	TopCategories           int
	Timeout                 time.Duration
	TrendMonths             int
	Basis                   core.IncomeBasis
	IncludeBankTransactions bool
}

func DefaultDashboardConfig() DashboardConfig {
	return DashboardConfig{
		TopCategories:           core.DefaultTopCategories,
		Timeout:                 5 * time.Second,
		TrendMonths:             12,
		Basis:                   core.CashBasis,
		IncludeBankTransactions: true,
	}
}

func (c DashboardConfig) withDefaults() DashboardConfig {
	d := DefaultDashboardConfig()
	if c.TopCategories <= 0 {
		c.TopCategories = d.TopCategories
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.TrendMonths <= 0 {
		c.TrendMonths = d.TrendMonths
	}
	if !c.Basis.IsValid() {
		c.Basis = d.Basis
	}
	return c
}

// RecordReader is the slice of the store the aggregator reads from.
type RecordReader interface {
	store.InvoiceReader
	store.ExpenseReader
	store.TransactionReader
}

// SummaryQuery is a validated request for a dashboard summary. Zero dates
// mean the bound was not supplied.
type SummaryQuery struct {
	BusinessID uuid.UUID
	From       core.Date
	To         core.Date
}

// ParseSummaryQuery validates raw request parameters.
func ParseSummaryQuery(businessID, from, to string) (SummaryQuery, error) {
	var q SummaryQuery
	id, err := ParseBusinessID(strings.TrimSpace(businessID))
	if err != nil {
		return q, err
	}
	q.BusinessID = id

	if from = strings.TrimSpace(from); from != "" {
		if q.From, err = core.ParseDate(from); err != nil {
			return q, fmt.Errorf("%w: from: %v", core.ErrInvalidArgument, err)
		}
	}
	if to = strings.TrimSpace(to); to != "" {
		if q.To, err = core.ParseDate(to); err != nil {
			return q, fmt.Errorf("%w: to: %v", core.ErrInvalidArgument, err)
		}
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fmt.Errorf("%w: to %s is before from %s", core.ErrInvalidArgument, q.To, q.From)
	}
	return q, nil
}

// Periods resolves the totals period and the trend period. Without bounds the
// totals cover the current month and the trends the trailing trendMonths
// months; a supplied range is used for both.
func (q SummaryQuery) Periods(today core.Date, trendMonths int) (period, trend core.DateRange, err error) {
	if q.From.IsZero() && q.To.IsZero() {
		return core.CurrentMonth(today), core.TrailingMonths(today, trendMonths), nil
	}
	to := q.To
	if to.IsZero() {
		to = today
	}
	from := q.From
	if from.IsZero() {
		from = to.MonthStart()
	}
	r := core.DateRange{From: from, To: to}
	if err := r.Validate(); err != nil {
		return core.DateRange{}, core.DateRange{}, err
	}
	return r, r, nil
}

// DashboardService computes business summaries on demand.
type DashboardService struct {
	records   RecordReader
	directory store.BusinessDirectory
	audit     AuditPublisher
	cfg       DashboardConfig
	logger    *slog.Logger
	now       func() time.Time
}

func NewDashboardService(records RecordReader, directory store.BusinessDirectory, audit AuditPublisher, cfg DashboardConfig, logger *slog.Logger) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardService{
		records:   records,
		directory: directory,
		audit:     audit,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "dashboard"),
		now:       time.Now,
	}
}

// WithClock replaces the wall clock used to determine today.
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

func (s *DashboardService) Config() DashboardConfig {
	return s.cfg
}

// Summary authorises userID for the query's business, reads its records
// concurrently and folds them into a summary. Invalid ranges are rejected
// before any store access.
func (s *DashboardService) Summary(ctx context.Context, userID uuid.UUID, q SummaryQuery) (core.DashboardSummary, error) {
	if q.BusinessID == uuid.Nil {
		return core.DashboardSummary{}, fmt.Errorf("%w: businessId is required", core.ErrInvalidArgument)
	}
	today := core.DateOf(s.now())
	period, trend, err := q.Periods(today, s.cfg.TrendMonths)
	if err != nil {
		return core.DashboardSummary{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if _, _, err := authorize(ctx, s.directory, userID, q.BusinessID); err != nil {
		return core.DashboardSummary{}, err
	}

	in, err := s.fetch(ctx, store.Filter{
		BusinessID: q.BusinessID,
		Range:      period.Union(trend),
		Statuses:   []core.InvoiceStatus{core.StatusSent, core.StatusPaid, core.StatusOverdue},
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Dashboard reads failed",
			"business_id", q.BusinessID,
			"period", period.String(),
			"error", err)
		return core.DashboardSummary{}, err
	}

	summary := core.Summarize(in, core.SummaryOptions{
		Today:                   today,
		Period:                  period,
		TrendPeriod:             trend,
		TopN:                    s.cfg.TopCategories,
		Basis:                   s.cfg.Basis,
		IncludeBankTransactions: s.cfg.IncludeBankTransactions,
	})

	s.logger.InfoContext(ctx, "Dashboard summary computed",
		"business_id", q.BusinessID,
		"period", period.String(),
		"invoices", len(in.Invoices),
		"expenses", len(in.Expenses),
		"transactions", len(in.Transactions),
		"duration_ms", time.Since(start).Milliseconds())

	recordAudit(ctx, s.logger, s.audit,
		core.NewAuditEvent(userID, q.BusinessID, core.ModuleDashboard, core.ActionView, period.String(), s.now()))

	return summary, nil
}

// fetch reads the three record sets in parallel. The first failure cancels
// the remaining reads and no partial snapshot is returned.
func (s *DashboardService) fetch(ctx context.Context, f store.Filter) (core.SummaryInput, error) {
	var in core.SummaryInput
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		invoices, err := s.records.ListInvoices(gctx, f)
		if err != nil {
			return readError("list invoices", err)
		}
		in.Invoices = invoices
		return nil
	})
	g.Go(func() error {
		expenses, err := s.records.ListExpenses(gctx, f)
		if err != nil {
			return readError("list expenses", err)
		}
		in.Expenses = expenses
		return nil
	})
	if s.cfg.IncludeBankTransactions {
		g.Go(func() error {
			txns, err := s.records.ListTransactions(gctx, f)
			if err != nil {
				return readError("list transactions", err)
			}
			in.Transactions = txns
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return core.SummaryInput{}, err
	}
	return in, nil
}

func readError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: timed out", op, core.ErrDependencyUnavailable)
	}
	return dependencyError(op, err)
}
