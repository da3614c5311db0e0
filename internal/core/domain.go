package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	StatusDraft     InvoiceStatus = "draft"
	StatusSent      InvoiceStatus = "sent"
	StatusPaid      InvoiceStatus = "paid"
	StatusOverdue   InvoiceStatus = "overdue"
	StatusCancelled InvoiceStatus = "cancelled"
)

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

const (
	RoleOwner      Role = "owner"
	RoleAdmin      Role = "admin"
	RoleStaff      Role = "staff"
	RoleAccountant Role = "accountant"
)

// DefaultCategory is used for expenses recorded without a category.
const DefaultCategory = "Other"

type (
	InvoiceStatus string
	Direction     string
	Role          string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Business struct {
		ID               uuid.UUID
		Name             string
		SubscriptionPlan string
		CreatedAt        time.Time
	}

	// Membership grants a user access to a business.
	Membership struct {
		UserID     uuid.UUID
		BusinessID uuid.UUID
		Role       Role
	}

	LineItem struct {
		Description string
		Quantity    int64
		UnitPrice   Money
	}

	Invoice struct {
		ID         uuid.UUID
		BusinessID uuid.UUID
		CustomerID uuid.UUID
		Number     string
		Status     InvoiceStatus
		IssueDate  Date
		DueDate    Date // zero when the invoice has no due date
		Items      []LineItem
	}

	Expense struct {
		ID         uuid.UUID
		BusinessID uuid.UUID
		Category   string
		Amount     Money
		Date       Date
		Vendor     string
		Recurring  bool
	}

	BankTransaction struct {
		ID          uuid.UUID
		BusinessID  uuid.UUID
		Date        Date
		Amount      Money
		Direction   Direction
		Description string
		AICategory  string
		Confidence  decimal.NullDecimal
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrInvalidStatus    = errors.New("invalid invoice status")
	ErrInvalidDirection = errors.New("invalid transaction direction")
	ErrMissingBusiness  = errors.New("missing business id")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// Before reports whether d is an earlier day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// After reports whether d is a later day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Equal reports whether both dates are the same day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// MonthStart returns the first day of d's month.
func (d Date) MonthStart() Date {
	return NewDate(d.Year(), int(d.Month()), 1)
}

// MonthEnd returns the last day of d's month.
func (d Date) MonthEnd() Date {
	return Date{Time: d.MonthStart().AddDate(0, 1, -1)}
}

// AddMonths shifts the month start of d by n months.
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.MonthStart().AddDate(0, n, 0)}
}

func (s InvoiceStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseInvoiceStatus accepts any casing ("Paid", "PAID", "paid").
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	st := InvoiceStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// ParseDirection accepts any casing ("Debit", "credit").
func ParseDirection(s string) (Direction, error) {
	dir := Direction(strings.ToLower(strings.TrimSpace(s)))
	if dir != Credit && dir != Debit {
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
	return dir, nil
}

// Total is the line item amount, quantity times unit price.
func (li LineItem) Total() Money {
	return li.UnitPrice.Mul(li.Quantity)
}

func (li LineItem) Validate() error {
	if li.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if li.UnitPrice.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Total is the sum of the invoice line item totals.
func (inv Invoice) Total() Money {
	var total Money
	for _, li := range inv.Items {
		total = total.Add(li.Total())
	}
	return total
}

// IsOverdue reports whether the invoice is unpaid past its due date. The
// stored status alone does not make an invoice overdue.
func (inv Invoice) IsOverdue(today Date) bool {
	return inv.Status != StatusPaid && !inv.DueDate.IsZero() && inv.DueDate.Before(today)
}

// IsPending reports whether a sent invoice is still within its due date.
func (inv Invoice) IsPending(today Date) bool {
	return inv.Status == StatusSent && !inv.IsOverdue(today)
}

func (inv Invoice) Validate() error {
	if inv.BusinessID == uuid.Nil {
		return ErrMissingBusiness
	}
	if !inv.Status.IsValid() {
		return ErrInvalidStatus
	}
	if err := inv.IssueDate.Validate(); err != nil {
		return fmt.Errorf("invalid issue date: %w", err)
	}
	if !inv.DueDate.IsZero() && inv.DueDate.Before(inv.IssueDate) {
		return errors.New("due date must not be before issue date")
	}
	for i, li := range inv.Items {
		if err := li.Validate(); err != nil {
			return fmt.Errorf("line item %d: %w", i, err)
		}
	}
	return nil
}

// CategoryName returns the trimmed category, or DefaultCategory when blank.
func (e Expense) CategoryName() string {
	return NormalizeCategory(e.Category)
}

func (e Expense) Validate() error {
	if e.BusinessID == uuid.Nil {
		return ErrMissingBusiness
	}
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if len(e.Category) > 100 {
		return errors.New("category too long (max 100 characters)")
	}
	return nil
}

// Categorised reports whether the transaction has been assigned a category.
func (t BankTransaction) Categorised() bool {
	return strings.TrimSpace(t.AICategory) != ""
}

func (t BankTransaction) Validate() error {
	if t.BusinessID == uuid.Nil {
		return ErrMissingBusiness
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Direction != Credit && t.Direction != Debit {
		return ErrInvalidDirection
	}
	return nil
}

// NormalizeCategory trims the category name and substitutes DefaultCategory
// for blank names.
func NormalizeCategory(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultCategory
	}
	return name
}
