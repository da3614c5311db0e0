// Package memory is an in-process entity store used by tests and by the
// "memory" data backend.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"finlight/internal/core"
	"finlight/internal/store"
)

type membershipKey struct {
	user     uuid.UUID
	business uuid.UUID
}

type Store struct {
	mu           sync.Mutex
	businesses   map[uuid.UUID]core.Business
	memberships  map[membershipKey]core.Membership
	invoices     []core.Invoice
	expenses     []core.Expense
	transactions []core.BankTransaction
	audit        []core.AuditEvent
	readErr      error

	reads atomic.Int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		businesses:  map[uuid.UUID]core.Business{},
		memberships: map[membershipKey]core.Membership{},
	}
}

// AddBusiness registers a business.
func (s *Store) AddBusiness(b core.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = b
}

// AddMembership grants userID access to businessID.
func (s *Store) AddMembership(m core.Membership) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberships[membershipKey{m.UserID, m.BusinessID}] = m
}

// RemoveMembership revokes userID's access to businessID.
func (s *Store) RemoveMembership(userID, businessID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memberships, membershipKey{userID, businessID})
}

func (s *Store) AddInvoice(inv core.Invoice) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = append(s.invoices, inv)
	return nil
}

func (s *Store) AddExpense(e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append(s.expenses, e)
	return nil
}

func (s *Store) AddTransaction(t core.BankTransaction) error {
	if err := t.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, t)
	return nil
}

// FailReads makes every subsequent list call return err. Pass nil to reset.
func (s *Store) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// Reads returns how many list calls have been served.
func (s *Store) Reads() int64 {
	return s.reads.Load()
}

// AuditEvents returns a copy of the recorded audit trail.
func (s *Store) AuditEvents() []core.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.AuditEvent(nil), s.audit...)
}

func (s *Store) ListInvoices(ctx context.Context, f store.Filter) ([]core.Invoice, error) {
	if err := s.beginRead(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Invoice
	for _, inv := range s.invoices {
		if inv.BusinessID != f.BusinessID || !f.Range.Contains(inv.IssueDate) || !f.Matches(inv.Status) {
			continue
		}
		inv.Items = append([]core.LineItem(nil), inv.Items...)
		out = append(out, inv)
	}
	return out, nil
}

func (s *Store) ListExpenses(ctx context.Context, f store.Filter) ([]core.Expense, error) {
	if err := s.beginRead(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.BusinessID == f.BusinessID && f.Range.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, f store.Filter) ([]core.BankTransaction, error) {
	if err := s.beginRead(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BankTransaction
	for _, t := range s.transactions {
		if t.BusinessID == f.BusinessID && f.Range.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) GetBusiness(_ context.Context, id uuid.UUID) (core.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return core.Business{}, fmt.Errorf("business %s: %w", id, core.ErrNotFound)
	}
	return b, nil
}

func (s *Store) GetMembership(_ context.Context, userID, businessID uuid.UUID) (core.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[membershipKey{userID, businessID}]
	if !ok {
		return core.Membership{}, fmt.Errorf("membership %s/%s: %w", userID, businessID, core.ErrNotFound)
	}
	return m, nil
}

func (s *Store) WriteAudit(_ context.Context, e core.AuditEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *Store) ListAudit(ctx context.Context, businessID uuid.UUID, limit int) ([]core.AuditEvent, error) {
	if err := s.beginRead(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AuditEvent
	for _, e := range s.audit {
		if e.BusinessID == businessID {
			out = append(out, e)
		}
	}
	slices.SortStableFunc(out, func(a, b core.AuditEvent) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) beginRead(ctx context.Context) error {
	s.reads.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readErr
}

// seedFile is the JSON layout accepted by NewFromFile.
type seedFile struct {
	Businesses []struct {
		ID   uuid.UUID `json:"id"`
		Name string    `json:"name"`
		Plan string    `json:"subscriptionPlan"`
	} `json:"businesses"`
	Memberships []struct {
		UserID     uuid.UUID `json:"userId"`
		BusinessID uuid.UUID `json:"businessId"`
		Role       string    `json:"role"`
	} `json:"memberships"`
	Invoices []struct {
		ID         uuid.UUID `json:"id"`
		BusinessID uuid.UUID `json:"businessId"`
		CustomerID uuid.UUID `json:"customerId"`
		Number     string    `json:"number"`
		Status     string    `json:"status"`
		IssueDate  string    `json:"issueDate"`
		DueDate    string    `json:"dueDate"`
		Items      []struct {
			Description string `json:"description"`
			Quantity    int64  `json:"quantity"`
			UnitPrice   string `json:"unitPrice"`
		} `json:"items"`
	} `json:"invoices"`
	Expenses []struct {
		ID         uuid.UUID `json:"id"`
		BusinessID uuid.UUID `json:"businessId"`
		Category   string    `json:"category"`
		Amount     string    `json:"amount"`
		Date       string    `json:"date"`
		Vendor     string    `json:"vendor"`
		Recurring  bool      `json:"recurring"`
	} `json:"expenses"`
	Transactions []struct {
		ID          uuid.UUID `json:"id"`
		BusinessID  uuid.UUID `json:"businessId"`
		Date        string    `json:"date"`
		Amount      string    `json:"amount"`
		Direction   string    `json:"direction"`
		Description string    `json:"description"`
		AICategory  string    `json:"aiCategory"`
	} `json:"transactions"`
}

// NewFromFile builds a store from a JSON seed file. An empty path yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	if path == "" {
		return s, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}
	if err := s.load(seed); err != nil {
		return nil, fmt.Errorf("load seed file %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) load(seed seedFile) error {
	for _, b := range seed.Businesses {
		s.AddBusiness(core.Business{ID: b.ID, Name: b.Name, SubscriptionPlan: b.Plan})
	}
	for _, m := range seed.Memberships {
		s.AddMembership(core.Membership{UserID: m.UserID, BusinessID: m.BusinessID, Role: core.Role(m.Role)})
	}
	for i, in := range seed.Invoices {
		status, err := core.ParseInvoiceStatus(in.Status)
		if err != nil {
			return fmt.Errorf("invoice %d: %w", i, err)
		}
		issue, err := core.ParseDate(in.IssueDate)
		if err != nil {
			return fmt.Errorf("invoice %d: %w", i, err)
		}
		var due core.Date
		if in.DueDate != "" {
			if due, err = core.ParseDate(in.DueDate); err != nil {
				return fmt.Errorf("invoice %d: %w", i, err)
			}
		}
		inv := core.Invoice{
			ID: orNew(in.ID), BusinessID: in.BusinessID, CustomerID: in.CustomerID,
			Number: in.Number, Status: status, IssueDate: issue, DueDate: due,
		}
		for _, it := range in.Items {
			price, err := core.ParseMoney(it.UnitPrice)
			if err != nil {
				return fmt.Errorf("invoice %d item: %w", i, err)
			}
			inv.Items = append(inv.Items, core.LineItem{Description: it.Description, Quantity: it.Quantity, UnitPrice: price})
		}
		if err := s.AddInvoice(inv); err != nil {
			return fmt.Errorf("invoice %d: %w", i, err)
		}
	}
	for i, ex := range seed.Expenses {
		d, err := core.ParseDate(ex.Date)
		if err != nil {
			return fmt.Errorf("expense %d: %w", i, err)
		}
		amount, err := core.ParseMoney(ex.Amount)
		if err != nil {
			return fmt.Errorf("expense %d: %w", i, err)
		}
		e := core.Expense{
			ID: orNew(ex.ID), BusinessID: ex.BusinessID, Category: ex.Category,
			Amount: amount, Date: d, Vendor: ex.Vendor, Recurring: ex.Recurring,
		}
		if err := s.AddExpense(e); err != nil {
			return fmt.Errorf("expense %d: %w", i, err)
		}
	}
	for i, tx := range seed.Transactions {
		d, err := core.ParseDate(tx.Date)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		amount, err := core.ParseMoney(tx.Amount)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		dir, err := core.ParseDirection(tx.Direction)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
		t := core.BankTransaction{
			ID: orNew(tx.ID), BusinessID: tx.BusinessID, Date: d, Amount: amount,
			Direction: dir, Description: tx.Description, AICategory: tx.AICategory,
		}
		if err := s.AddTransaction(t); err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}
	}
	return nil
}

func orNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
