package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"finlight/internal/core"
	"finlight/internal/store"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListInvoices(ctx context.Context, f store.Filter) ([]core.Invoice, error) {
	q := `SELECT i.id, i.business_id, i.customer_id, i.number, i.status, i.issue_date, i.due_date,
		it.description, it.quantity, it.unit_price
	FROM invoices i
	LEFT JOIN invoice_items it ON it.invoice_id = i.id
	WHERE i.business_id = ? AND i.issue_date BETWEEN ? AND ?`
	args := []any{f.BusinessID.String(), f.Range.From.String(), f.Range.To.String()}
	if len(f.Statuses) > 0 {
		q += ` AND i.status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, s := range f.StatusStrings() {
			args = append(args, s)
		}
	}
	q += ` ORDER BY i.issue_date, i.id, it.id`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *SQLiteRepository) ListExpenses(ctx context.Context, f store.Filter) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, business_id, category, amount, date, vendor, recurring
		FROM expenses
		WHERE business_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, id`,
		f.BusinessID.String(), f.Range.From.String(), f.Range.To.String())
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f store.Filter) ([]core.BankTransaction, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, business_id, date, amount, direction, description, ai_category, confidence
		FROM bank_transactions
		WHERE business_id = ? AND date BETWEEN ? AND ?
		ORDER BY date, id`,
		f.BusinessID.String(), f.Range.From.String(), f.Range.To.String())
	if err != nil {
		return nil, fmt.Errorf("query bank transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *SQLiteRepository) GetBusiness(ctx context.Context, id uuid.UUID) (core.Business, error) {
	var bid, name, plan string
	err := r.db.QueryRowContext(ctx, `SELECT id, name, subscription_plan FROM businesses WHERE id = ?`, id.String()).
		Scan(&bid, &name, &plan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Business{}, fmt.Errorf("business %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Business{}, fmt.Errorf("get business: %w", err)
	}
	return decodeBusiness(bid, name, plan)
}

func (r *SQLiteRepository) GetMembership(ctx context.Context, userID, businessID uuid.UUID) (core.Membership, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM user_business_roles WHERE user_id = ? AND business_id = ?`,
		userID.String(), businessID.String()).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Membership{}, fmt.Errorf("membership %s/%s: %w", userID, businessID, core.ErrNotFound)
	}
	if err != nil {
		return core.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return core.Membership{UserID: userID, BusinessID: businessID, Role: core.Role(role)}, nil
}

func (r *SQLiteRepository) WriteAudit(ctx context.Context, e core.AuditEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_logs (id, user_id, business_id, action, module, record_id, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		e.ID.String(), nullableUUID(e.UserID), nullableUUID(e.BusinessID), e.Action, e.Module,
		nullableUUID(e.RecordID), nullableString(e.Details), e.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	slog.DebugContext(ctx, "Audit event stored", "id", e.ID, "module", e.Module, "action", e.Action)
	return nil
}

// ListAudit returns the audit trail of a business, newest first.
func (r *SQLiteRepository) ListAudit(ctx context.Context, businessID uuid.UUID, limit int) ([]core.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, business_id, action, module, record_id, details, timestamp
		FROM audit_logs WHERE business_id = ? ORDER BY timestamp DESC LIMIT ?`, businessID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()
	return scanAudit(rows)
}

// InsertBusiness creates a business.
func (r *SQLiteRepository) InsertBusiness(ctx context.Context, b core.Business) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO businesses (id, name, subscription_plan) VALUES (?, ?, ?)`,
		b.ID.String(), b.Name, planOrDefault(b.SubscriptionPlan))
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertMembership(ctx context.Context, m core.Membership) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO user_business_roles (user_id, business_id, role) VALUES (?, ?, ?)`,
		m.UserID.String(), m.BusinessID.String(), string(m.Role))
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// InsertInvoice stores an invoice and its line items in one transaction.
func (r *SQLiteRepository) InsertInvoice(ctx context.Context, inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO invoices (id, business_id, customer_id, number, status, issue_date, due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID.String(), inv.BusinessID.String(), nullableUUID(inv.CustomerID), inv.Number, string(inv.Status),
		inv.IssueDate.String(), nullableDate(inv.DueDate))
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	for _, li := range inv.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO invoice_items (invoice_id, description, quantity, unit_price) VALUES (?, ?, ?, ?)`,
			inv.ID.String(), li.Description, li.Quantity, li.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("insert invoice item: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) InsertExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO expenses (id, business_id, category, amount, date, vendor, recurring)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.BusinessID.String(), e.Category, e.Amount.String(), e.Date.String(), e.Vendor, e.Recurring)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.BankTransaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO bank_transactions (id, business_id, date, amount, direction, description, ai_category, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.BusinessID.String(), t.Date.String(), t.Amount.String(), string(t.Direction),
		t.Description, nullableString(t.AICategory), nullableDecimal(t.Confidence))
	if err != nil {
		return fmt.Errorf("insert bank transaction: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func planOrDefault(plan string) string {
	if plan == "" {
		return "free"
	}
	return plan
}
