package core

import (
	"fmt"
	"sort"
)

const (
	// CashBasis recognises income when an invoice is paid.
	CashBasis IncomeBasis = "cash"
	// AccrualBasis recognises income for every issued, non-draft invoice.
	AccrualBasis IncomeBasis = "accrual"
)

// DefaultTopCategories is the category list length when none is configured.
const DefaultTopCategories = 5

type IncomeBasis string

func (b IncomeBasis) IsValid() bool {
	return b == CashBasis || b == AccrualBasis
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
	Count  int
}

// MonthlyTrend holds income and expenses for one calendar month.
type MonthlyTrend struct {
	Year     int
	Month    int // 1-12
	Income   Money
	Expenses Money
	Net      Money
}

// Label formats the bucket month as YYYY-MM.
func (t MonthlyTrend) Label() string {
	return fmt.Sprintf("%04d-%02d", t.Year, t.Month)
}

// DashboardSummary is the derived view of a business over a period. It is
// recomputed on every request and never stored.
type DashboardSummary struct {
	Period               DateRange
	TrendPeriod          DateRange
	TotalIncome          Money
	TotalExpenses        Money
	NetCashFlow          Money
	PendingInvoices      int
	OverdueInvoices      int
	TopExpenseCategories []CategoryAmount
	MonthlyTrends        []MonthlyTrend
}

// SummaryInput is the snapshot of records read for one business.
type SummaryInput struct {
	Invoices     []Invoice
	Expenses     []Expense
	Transactions []BankTransaction
}

type SummaryOptions struct {
	Today       Date
	Period      DateRange // totals, invoice counts and categories
	TrendPeriod DateRange // monthly trend buckets
	TopN        int
	Basis       IncomeBasis

	// IncludeBankTransactions adds categorised bank credits to income and
	// categorised bank debits to expenses.
	IncludeBankTransactions bool
}

// Summarize folds a record snapshot into a DashboardSummary. Records outside
// both periods are ignored, so the snapshot may cover a wider window.
func Summarize(in SummaryInput, opts SummaryOptions) DashboardSummary {
	if opts.TopN <= 0 {
		opts.TopN = DefaultTopCategories
	}
	if !opts.Basis.IsValid() {
		opts.Basis = CashBasis
	}

	out := DashboardSummary{
		Period:               opts.Period,
		TrendPeriod:          opts.TrendPeriod,
		TopExpenseCategories: []CategoryAmount{},
		MonthlyTrends:        []MonthlyTrend{},
	}
	trends := newTrendBuckets()
	categories := map[string]*CategoryAmount{}

	addCategory := func(name string, amount Money) {
		c, ok := categories[name]
		if !ok {
			c = &CategoryAmount{Name: name}
			categories[name] = c
		}
		c.Amount = c.Amount.Add(amount)
		c.Count++
	}

	for _, inv := range in.Invoices {
		if inv.Status == StatusDraft || inv.Status == StatusCancelled {
			continue
		}
		inPeriod := opts.Period.Contains(inv.IssueDate)
		if inPeriod {
			switch {
			case inv.IsOverdue(opts.Today):
				out.OverdueInvoices++
			case inv.IsPending(opts.Today):
				out.PendingInvoices++
			}
		}
		if !recognisesIncome(inv, opts.Basis) {
			continue
		}
		total := inv.Total()
		if inPeriod {
			out.TotalIncome = out.TotalIncome.Add(total)
		}
		if opts.TrendPeriod.Contains(inv.IssueDate) {
			trends.income(inv.IssueDate, total)
		}
	}

	for _, e := range in.Expenses {
		if opts.Period.Contains(e.Date) {
			out.TotalExpenses = out.TotalExpenses.Add(e.Amount)
			addCategory(e.CategoryName(), e.Amount)
		}
		if opts.TrendPeriod.Contains(e.Date) {
			trends.expense(e.Date, e.Amount)
		}
	}

	if opts.IncludeBankTransactions {
		for _, t := range in.Transactions {
			if !t.Categorised() {
				continue
			}
			amount := t.Amount.Abs()
			inPeriod := opts.Period.Contains(t.Date)
			inTrend := opts.TrendPeriod.Contains(t.Date)
			switch t.Direction {
			case Credit:
				if inPeriod {
					out.TotalIncome = out.TotalIncome.Add(amount)
				}
				if inTrend {
					trends.income(t.Date, amount)
				}
			case Debit:
				if inPeriod {
					out.TotalExpenses = out.TotalExpenses.Add(amount)
					addCategory(NormalizeCategory(t.AICategory), amount)
				}
				if inTrend {
					trends.expense(t.Date, amount)
				}
			}
		}
	}

	out.NetCashFlow = out.TotalIncome.Sub(out.TotalExpenses)
	out.TopExpenseCategories = topCategories(categories, opts.TopN)
	out.MonthlyTrends = trends.sorted()
	return out
}

func recognisesIncome(inv Invoice, basis IncomeBasis) bool {
	switch basis {
	case AccrualBasis:
		return inv.Status == StatusSent || inv.Status == StatusPaid || inv.Status == StatusOverdue
	default:
		return inv.Status == StatusPaid
	}
}

// topCategories sorts by amount descending, then name ascending, and keeps n.
func topCategories(byName map[string]*CategoryAmount, n int) []CategoryAmount {
	out := make([]CategoryAmount, 0, len(byName))
	for _, c := range byName {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

type trendBuckets map[int]*MonthlyTrend

func newTrendBuckets() trendBuckets {
	return trendBuckets{}
}

func (b trendBuckets) bucket(d Date) *MonthlyTrend {
	key := d.Year()*12 + int(d.Month()) - 1
	t, ok := b[key]
	if !ok {
		t = &MonthlyTrend{Year: d.Year(), Month: int(d.Month())}
		b[key] = t
	}
	return t
}

func (b trendBuckets) income(d Date, amount Money) {
	t := b.bucket(d)
	t.Income = t.Income.Add(amount)
}

func (b trendBuckets) expense(d Date, amount Money) {
	t := b.bucket(d)
	t.Expenses = t.Expenses.Add(amount)
}

func (b trendBuckets) sorted() []MonthlyTrend {
	keys := make([]int, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]MonthlyTrend, 0, len(keys))
	for _, k := range keys {
		t := *b[k]
		t.Net = t.Income.Sub(t.Expenses)
		out = append(out, t)
	}
	return out
}
