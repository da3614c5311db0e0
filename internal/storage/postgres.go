package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"finlight/internal/core"
	"finlight/internal/store"
)

// PostgresRepository reads the hosted Postgres entity store through a pgx pool.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*PostgresRepository)(nil)

type PostgresOptions struct {
	URL      string
	MaxConns int32
	Migrate  bool
}

// NewPostgresRepository connects the pool, optionally migrates, and pings.
func NewPostgresRepository(ctx context.Context, opts PostgresOptions) (*PostgresRepository, error) {
	if opts.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	cfg, err := pgxpool.ParseConfig(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	// Hosted Postgres scales to zero; do not pin idle connections
	cfg.MinConns = 0
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	if opts.Migrate {
		if err := RunPostgresMigrations(opts.URL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.InfoContext(ctx, "Connected to Postgres", "max_conns", cfg.MaxConns)
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) ListInvoices(ctx context.Context, f store.Filter) ([]core.Invoice, error) {
	q := `SELECT i.id::text, i.business_id::text, i.customer_id::text, i.number, i.status,
		i.issue_date::text, i.due_date::text,
		it.description, it.quantity, it.unit_price::text
	FROM invoices i
	LEFT JOIN invoice_items it ON it.invoice_id = i.id
	WHERE i.business_id = $1::uuid AND i.issue_date BETWEEN $2::date AND $3::date`
	args := []any{f.BusinessID.String(), f.Range.From.String(), f.Range.To.String()}
	if len(f.Statuses) > 0 {
		q += ` AND i.status = ANY($4::text[])`
		args = append(args, f.StatusStrings())
	}
	q += ` ORDER BY i.issue_date, i.id, it.id`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func (r *PostgresRepository) ListExpenses(ctx context.Context, f store.Filter) ([]core.Expense, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, business_id::text, category, amount::text, date::text, vendor, recurring
		FROM expenses
		WHERE business_id = $1::uuid AND date BETWEEN $2::date AND $3::date
		ORDER BY date, id`,
		f.BusinessID.String(), f.Range.From.String(), f.Range.To.String())
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, f store.Filter) ([]core.BankTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, business_id::text, date::text, amount::text, direction, description,
		ai_category, confidence::text
		FROM bank_transactions
		WHERE business_id = $1::uuid AND date BETWEEN $2::date AND $3::date
		ORDER BY date, id`,
		f.BusinessID.String(), f.Range.From.String(), f.Range.To.String())
	if err != nil {
		return nil, fmt.Errorf("query bank transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func (r *PostgresRepository) GetBusiness(ctx context.Context, id uuid.UUID) (core.Business, error) {
	var bid, name, plan string
	err := r.pool.QueryRow(ctx, `SELECT id::text, name, subscription_plan FROM businesses WHERE id = $1::uuid`, id.String()).
		Scan(&bid, &name, &plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Business{}, fmt.Errorf("business %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Business{}, fmt.Errorf("get business: %w", err)
	}
	return decodeBusiness(bid, name, plan)
}

func (r *PostgresRepository) GetMembership(ctx context.Context, userID, businessID uuid.UUID) (core.Membership, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT role FROM user_business_roles WHERE user_id = $1::uuid AND business_id = $2::uuid`,
		userID.String(), businessID.String()).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Membership{}, fmt.Errorf("membership %s/%s: %w", userID, businessID, core.ErrNotFound)
	}
	if err != nil {
		return core.Membership{}, fmt.Errorf("get membership: %w", err)
	}
	return core.Membership{UserID: userID, BusinessID: businessID, Role: core.Role(role)}, nil
}

func (r *PostgresRepository) WriteAudit(ctx context.Context, e core.AuditEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO audit_logs (id, user_id, business_id, action, module, record_id, details, timestamp)
		VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6::uuid, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		e.ID.String(), nullableUUID(e.UserID), nullableUUID(e.BusinessID), e.Action, e.Module,
		nullableUUID(e.RecordID), nullableString(e.Details), e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	slog.DebugContext(ctx, "Audit event stored", "id", e.ID, "module", e.Module, "action", e.Action)
	return nil
}

// ListAudit returns the audit trail of a business, newest first.
func (r *PostgresRepository) ListAudit(ctx context.Context, businessID uuid.UUID, limit int) ([]core.AuditEvent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id::text, user_id::text, business_id::text, action, module, record_id::text, details,
		to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"')
		FROM audit_logs WHERE business_id = $1::uuid ORDER BY timestamp DESC LIMIT $2`, businessID.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query audit logs: %w", err)
	}
	defer rows.Close()
	return scanAudit(rows)
}

func (r *PostgresRepository) InsertBusiness(ctx context.Context, b core.Business) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO businesses (id, name, subscription_plan) VALUES ($1::uuid, $2, $3)`,
		b.ID.String(), b.Name, planOrDefault(b.SubscriptionPlan))
	if err != nil {
		return fmt.Errorf("insert business: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertMembership(ctx context.Context, m core.Membership) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_business_roles (user_id, business_id, role) VALUES ($1::uuid, $2::uuid, $3)`,
		m.UserID.String(), m.BusinessID.String(), string(m.Role))
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// InsertInvoice stores an invoice and its line items in one transaction.
func (r *PostgresRepository) InsertInvoice(ctx context.Context, inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO invoices (id, business_id, customer_id, number, status, issue_date, due_date)
			VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6::date, $7::date)`,
			inv.ID.String(), inv.BusinessID.String(), nullableUUID(inv.CustomerID), inv.Number, string(inv.Status),
			inv.IssueDate.String(), nullableDate(inv.DueDate))
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		batch := &pgx.Batch{}
		for _, li := range inv.Items {
			batch.Queue(`INSERT INTO invoice_items (invoice_id, description, quantity, unit_price) VALUES ($1::uuid, $2, $3, $4::numeric)`,
				inv.ID.String(), li.Description, li.Quantity, li.UnitPrice.String())
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert invoice items: %w", err)
		}
		return nil
	})
}

func (r *PostgresRepository) InsertExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO expenses (id, business_id, category, amount, date, vendor, recurring)
		VALUES ($1::uuid, $2::uuid, $3, $4::numeric, $5::date, $6, $7)`,
		e.ID.String(), e.BusinessID.String(), e.Category, e.Amount.String(), e.Date.String(), e.Vendor, e.Recurring)
	if err != nil {
		return fmt.Errorf("insert expense: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertTransaction(ctx context.Context, t core.BankTransaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO bank_transactions (id, business_id, date, amount, direction, description, ai_category, confidence)
		VALUES ($1::uuid, $2::uuid, $3::date, $4::numeric, $5, $6, $7, $8::numeric)`,
		t.ID.String(), t.BusinessID.String(), t.Date.String(), t.Amount.String(), string(t.Direction),
		t.Description, nullableString(t.AICategory), nullableDecimal(t.Confidence))
	if err != nil {
		return fmt.Errorf("insert bank transaction: %w", err)
	}
	return nil
}
