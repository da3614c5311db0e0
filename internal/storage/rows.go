// Package storage implements the entity store ports on SQLite and Postgres.
//
// Both repositories select dates, amounts and identifiers as text so the row
// decoding below is shared between dialects.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"finlight/internal/core"
)

// rowScanner is the part of *sql.Rows and pgx.Rows the decoders need.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

// scanInvoices folds invoice rows joined with their items (LEFT JOIN, ordered
// by invoice id) into invoices.
func scanInvoices(rows rowScanner) ([]core.Invoice, error) {
	var (
		out   []core.Invoice
		index = map[uuid.UUID]int{}
	)
	for rows.Next() {
		var (
			id, businessID, number, status, issue string
			customerID, due                       sql.NullString
			itemDesc, itemPrice                   sql.NullString
			itemQty                               sql.NullInt64
		)
		if err := rows.Scan(&id, &businessID, &customerID, &number, &status, &issue, &due,
			&itemDesc, &itemQty, &itemPrice); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invID, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("invoice id %q: %w", id, err)
		}
		i, seen := index[invID]
		if !seen {
			inv, err := decodeInvoice(invID, businessID, customerID, number, status, issue, due)
			if err != nil {
				return nil, err
			}
			out = append(out, inv)
			i = len(out) - 1
			index[invID] = i
		}
		if !itemQty.Valid {
			continue
		}
		price, err := parseAmount(itemPrice.String)
		if err != nil {
			return nil, fmt.Errorf("invoice %s item price: %w", invID, err)
		}
		out[i].Items = append(out[i].Items, core.LineItem{
			Description: itemDesc.String,
			Quantity:    itemQty.Int64,
			UnitPrice:   price,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	return out, nil
}

func decodeInvoice(id uuid.UUID, businessID string, customerID sql.NullString, number, status, issue string, due sql.NullString) (core.Invoice, error) {
	inv := core.Invoice{ID: id, Number: number}
	var err error
	if inv.BusinessID, err = uuid.Parse(businessID); err != nil {
		return inv, fmt.Errorf("invoice %s business id: %w", id, err)
	}
	if customerID.Valid && customerID.String != "" {
		if inv.CustomerID, err = uuid.Parse(customerID.String); err != nil {
			return inv, fmt.Errorf("invoice %s customer id: %w", id, err)
		}
	}
	if inv.Status, err = core.ParseInvoiceStatus(status); err != nil {
		return inv, fmt.Errorf("invoice %s: %w", id, err)
	}
	if inv.IssueDate, err = parseDay(issue); err != nil {
		return inv, fmt.Errorf("invoice %s issue date: %w", id, err)
	}
	if due.Valid && due.String != "" {
		if inv.DueDate, err = parseDay(due.String); err != nil {
			return inv, fmt.Errorf("invoice %s due date: %w", id, err)
		}
	}
	return inv, nil
}

func scanExpenses(rows rowScanner) ([]core.Expense, error) {
	var out []core.Expense
	for rows.Next() {
		var (
			id, businessID, category, amount, day, vendor string
			recurring                                     bool
		)
		if err := rows.Scan(&id, &businessID, &category, &amount, &day, &vendor, &recurring); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		e := core.Expense{Category: category, Vendor: vendor, Recurring: recurring}
		var err error
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("expense id %q: %w", id, err)
		}
		if e.BusinessID, err = uuid.Parse(businessID); err != nil {
			return nil, fmt.Errorf("expense %s business id: %w", id, err)
		}
		if e.Amount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("expense %s amount: %w", id, err)
		}
		if e.Date, err = parseDay(day); err != nil {
			return nil, fmt.Errorf("expense %s date: %w", id, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func scanTransactions(rows rowScanner) ([]core.BankTransaction, error) {
	var out []core.BankTransaction
	for rows.Next() {
		var (
			id, businessID, day, amount, direction, description string
			category, confidence                                sql.NullString
		)
		if err := rows.Scan(&id, &businessID, &day, &amount, &direction, &description, &category, &confidence); err != nil {
			return nil, fmt.Errorf("scan bank transaction: %w", err)
		}
		t := core.BankTransaction{Description: description, AICategory: category.String}
		var err error
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bank transaction id %q: %w", id, err)
		}
		if t.BusinessID, err = uuid.Parse(businessID); err != nil {
			return nil, fmt.Errorf("bank transaction %s business id: %w", id, err)
		}
		if t.Date, err = parseDay(day); err != nil {
			return nil, fmt.Errorf("bank transaction %s date: %w", id, err)
		}
		if t.Amount, err = parseAmount(amount); err != nil {
			return nil, fmt.Errorf("bank transaction %s amount: %w", id, err)
		}
		if t.Direction, err = core.ParseDirection(direction); err != nil {
			return nil, fmt.Errorf("bank transaction %s: %w", id, err)
		}
		if confidence.Valid && confidence.String != "" {
			d, err := decimal.NewFromString(confidence.String)
			if err != nil {
				return nil, fmt.Errorf("bank transaction %s confidence: %w", id, err)
			}
			t.Confidence = decimal.NewNullDecimal(d)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bank transactions: %w", err)
	}
	return out, nil
}

func decodeBusiness(id, name, plan string) (core.Business, error) {
	bid, err := uuid.Parse(id)
	if err != nil {
		return core.Business{}, fmt.Errorf("business id %q: %w", id, err)
	}
	return core.Business{ID: bid, Name: name, SubscriptionPlan: plan}, nil
}

// parseAmount reads a numeric column rendered as text ("40", "40.00", "-12.5").
func parseAmount(s string) (core.Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return core.Money{}, err
	}
	return core.MoneyFromDecimal(d), nil
}

// parseDay accepts a bare date or a timestamp and keeps the calendar day.
func parseDay(s string) (core.Date, error) {
	if len(s) >= len(time.DateOnly) {
		if d, err := core.ParseDate(s[:len(time.DateOnly)]); err == nil {
			return d, nil
		}
	}
	return core.ParseDate(s)
}

func nullableUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func nullableDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableDecimal(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func scanAudit(rows rowScanner) ([]core.AuditEvent, error) {
	var out []core.AuditEvent
	for rows.Next() {
		var (
			id, action, module, ts                string
			userID, businessID, recordID, details sql.NullString
		)
		if err := rows.Scan(&id, &userID, &businessID, &action, &module, &recordID, &details, &ts); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		e := core.AuditEvent{Action: action, Module: module, Details: details.String}
		var err error
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("audit id %q: %w", id, err)
		}
		for _, f := range []struct {
			src sql.NullString
			dst *uuid.UUID
		}{{userID, &e.UserID}, {businessID, &e.BusinessID}, {recordID, &e.RecordID}} {
			if !f.src.Valid || f.src.String == "" {
				continue
			}
			if *f.dst, err = uuid.Parse(f.src.String); err != nil {
				return nil, fmt.Errorf("audit %s: %w", id, err)
			}
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("audit %s timestamp: %w", id, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return out, nil
}
