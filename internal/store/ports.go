// Package store declares the narrow ports the services use to reach the
// entity store. Implementations live in internal/storage (SQL) and
// internal/store/memory (tests and local development).
package store

import (
	"context"

	"github.com/google/uuid"

	"finlight/internal/core"
)

// Filter scopes a read to one business and an inclusive date range.
type Filter struct {
	BusinessID uuid.UUID
	Range      core.DateRange
	// Statuses restricts invoice reads; empty means every status.
	Statuses []core.InvoiceStatus
}

// Ports for outbound adapters.
type (
	InvoiceReader interface {
		// ListInvoices returns invoices whose issue date falls in the range,
		// line items included.
		ListInvoices(ctx context.Context, f Filter) ([]core.Invoice, error)
	}

	ExpenseReader interface {
		ListExpenses(ctx context.Context, f Filter) ([]core.Expense, error)
	}

	TransactionReader interface {
		ListTransactions(ctx context.Context, f Filter) ([]core.BankTransaction, error)
	}

	// BusinessDirectory resolves businesses and user memberships. Missing
	// records are reported as core.ErrNotFound.
	BusinessDirectory interface {
		GetBusiness(ctx context.Context, id uuid.UUID) (core.Business, error)
		GetMembership(ctx context.Context, userID, businessID uuid.UUID) (core.Membership, error)
	}

	AuditWriter interface {
		WriteAudit(ctx context.Context, e core.AuditEvent) error
	}

	// AuditReader lists a business's audit trail, newest first.
	AuditReader interface {
		ListAudit(ctx context.Context, businessID uuid.UUID, limit int) ([]core.AuditEvent, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	// Reader is everything the dashboard needs from one backend.
	Reader interface {
		InvoiceReader
		ExpenseReader
		TransactionReader
		BusinessDirectory
	}

	// Store is a complete backend.
	Store interface {
		Reader
		AuditWriter
		AuditReader
		Pinger
	}
)

// Matches reports whether status passes the filter's status restriction.
func (f Filter) Matches(status core.InvoiceStatus) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// StatusStrings returns the status restriction as plain strings for SQL args.
func (f Filter) StatusStrings() []string {
	out := make([]string, len(f.Statuses))
	for i, s := range f.Statuses {
		out[i] = string(s)
	}
	return out
}
