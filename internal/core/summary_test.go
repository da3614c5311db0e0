package core

import (
	"reflect"
	"testing"
)

func invoice(issue Date, status InvoiceStatus, due Date, cents int64) Invoice {
	return Invoice{
		Status:    status,
		IssueDate: issue,
		DueDate:   due,
		Items:     []LineItem{{Description: "service", Quantity: 1, UnitPrice: Money{Cents: cents}}},
	}
}

func expense(d Date, category string, cents int64) Expense {
	return Expense{Date: d, Category: category, Amount: Money{Cents: cents}}
}

func juneOptions() SummaryOptions {
	today := NewDate(2024, 6, 15)
	return SummaryOptions{
		Today:       today,
		Period:      CurrentMonth(today),
		TrendPeriod: TrailingMonths(today, 12),
		TopN:        5,
		Basis:       CashBasis,
	}
}

func TestSummarizeReferenceScenario(t *testing.T) {
	day := NewDate(2024, 6, 3)
	in := SummaryInput{
		Invoices: []Invoice{
			invoice(day, StatusPaid, NewDate(2024, 1, 5), 10000),
			invoice(day, StatusSent, NewDate(2099, 1, 1), 5000),
			invoice(day, StatusSent, NewDate(2020, 1, 1), 3000),
		},
		Expenses: []Expense{
			expense(day, "rent", 4000),
			expense(day, "fuel", 1000),
		},
	}

	got := Summarize(in, juneOptions())

	if got.TotalIncome.Cents != 10000 {
		t.Errorf("totalIncome = %s", got.TotalIncome)
	}
	if got.TotalExpenses.Cents != 5000 {
		t.Errorf("totalExpenses = %s", got.TotalExpenses)
	}
	if got.NetCashFlow.Cents != 5000 {
		t.Errorf("netCashFlow = %s", got.NetCashFlow)
	}
	if got.PendingInvoices != 1 || got.OverdueInvoices != 1 {
		t.Errorf("pending=%d overdue=%d", got.PendingInvoices, got.OverdueInvoices)
	}
	wantCats := []CategoryAmount{
		{Name: "rent", Amount: Money{Cents: 4000}, Count: 1},
		{Name: "fuel", Amount: Money{Cents: 1000}, Count: 1},
	}
	if !reflect.DeepEqual(got.TopExpenseCategories, wantCats) {
		t.Errorf("categories = %+v", got.TopExpenseCategories)
	}
	if len(got.MonthlyTrends) != 1 {
		t.Fatalf("trends = %+v", got.MonthlyTrends)
	}
	june := got.MonthlyTrends[0]
	if june.Label() != "2024-06" || june.Income.Cents != 10000 || june.Expenses.Cents != 5000 || june.Net.Cents != 5000 {
		t.Errorf("june trend = %+v", june)
	}
}

func TestSummarizeAccrualBasis(t *testing.T) {
	day := NewDate(2024, 6, 3)
	in := SummaryInput{Invoices: []Invoice{
		invoice(day, StatusPaid, Date{}, 10000),
		invoice(day, StatusSent, Date{}, 5000),
		invoice(day, StatusOverdue, NewDate(2024, 6, 10), 3000),
		invoice(day, StatusDraft, Date{}, 7000),
		invoice(day, StatusCancelled, Date{}, 9000),
	}}
	opts := juneOptions()
	opts.Basis = AccrualBasis

	got := Summarize(in, opts)
	if got.TotalIncome.Cents != 18000 {
		t.Fatalf("accrual income = %s", got.TotalIncome)
	}
	if got.PendingInvoices != 1 || got.OverdueInvoices != 1 {
		t.Fatalf("pending=%d overdue=%d", got.PendingInvoices, got.OverdueInvoices)
	}
}

func TestSummarizeStoredOverdueNeedsPastDueDate(t *testing.T) {
	day := NewDate(2024, 6, 3)
	in := SummaryInput{Invoices: []Invoice{
		invoice(day, StatusOverdue, NewDate(2099, 1, 1), 3000),
		invoice(day, StatusOverdue, NewDate(2024, 6, 14), 2000),
	}}

	got := Summarize(in, juneOptions())
	if got.PendingInvoices != 0 || got.OverdueInvoices != 1 {
		t.Fatalf("pending=%d overdue=%d, want 0 and 1", got.PendingInvoices, got.OverdueInvoices)
	}
}

func TestSummarizeEmptyBusiness(t *testing.T) {
	got := Summarize(SummaryInput{}, juneOptions())
	if !got.TotalIncome.IsZero() || !got.TotalExpenses.IsZero() || !got.NetCashFlow.IsZero() {
		t.Fatalf("expected zero totals, got %+v", got)
	}
	if got.PendingInvoices != 0 || got.OverdueInvoices != 0 {
		t.Fatalf("expected zero counts")
	}
	if got.TopExpenseCategories == nil || len(got.TopExpenseCategories) != 0 {
		t.Fatalf("categories should be an empty list, got %#v", got.TopExpenseCategories)
	}
	if got.MonthlyTrends == nil || len(got.MonthlyTrends) != 0 {
		t.Fatalf("trends should be an empty list, got %#v", got.MonthlyTrends)
	}
}

func TestSummarizeNetIdentity(t *testing.T) {
	day := NewDate(2024, 6, 10)
	cases := []SummaryInput{
		{Expenses: []Expense{expense(day, "a", 12345)}},
		{Invoices: []Invoice{invoice(day, StatusPaid, Date{}, 1)}},
		{
			Invoices: []Invoice{invoice(day, StatusPaid, Date{}, 99999), invoice(day, StatusPaid, Date{}, 1)},
			Expenses: []Expense{expense(day, "a", 50000), expense(day, "b", 50001)},
		},
	}
	for i, in := range cases {
		got := Summarize(in, juneOptions())
		if got.NetCashFlow != got.TotalIncome.Sub(got.TotalExpenses) {
			t.Fatalf("case %d: net %s != %s - %s", i, got.NetCashFlow, got.TotalIncome, got.TotalExpenses)
		}
	}
}

func TestSummarizeIncomeIsAdditiveOverDisjointRanges(t *testing.T) {
	in := SummaryInput{Invoices: []Invoice{
		invoice(NewDate(2024, 1, 1), StatusPaid, Date{}, 1001),
		invoice(NewDate(2024, 1, 31), StatusPaid, Date{}, 2002),
		invoice(NewDate(2024, 2, 1), StatusPaid, Date{}, 3003),
		invoice(NewDate(2024, 3, 15), StatusPaid, Date{}, 4004),
		invoice(NewDate(2024, 3, 31), StatusSent, Date{}, 5005),
	}}
	total := func(r DateRange) int64 {
		opts := juneOptions()
		opts.Period = r
		return Summarize(in, opts).TotalIncome.Cents
	}
	r1 := DateRange{From: NewDate(2024, 1, 1), To: NewDate(2024, 1, 31)}
	r2 := DateRange{From: NewDate(2024, 2, 1), To: NewDate(2024, 3, 31)}

	if a, b, all := total(r1), total(r2), total(r1.Union(r2)); a+b != all {
		t.Fatalf("%d + %d != %d", a, b, all)
	}
}

func TestSummarizeTopCategoriesOrderingAndLimit(t *testing.T) {
	day := NewDate(2024, 6, 1)
	in := SummaryInput{Expenses: []Expense{
		expense(day, "fuel", 500),
		expense(day, "rent", 2000),
		expense(day, "ads", 500),
		expense(day, "", 700),
		expense(day, "  ", 100),
		expense(day, "travel", 300),
		expense(day, "rent", 100),
		expense(day, "tools", 50),
	}}
	opts := juneOptions()
	opts.TopN = 4

	got := Summarize(in, opts).TopExpenseCategories
	want := []CategoryAmount{
		{Name: "rent", Amount: Money{Cents: 2100}, Count: 2},
		{Name: DefaultCategory, Amount: Money{Cents: 800}, Count: 2},
		{Name: "ads", Amount: Money{Cents: 500}, Count: 1},
		{Name: "fuel", Amount: Money{Cents: 500}, Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		if prev.Amount.Cents < cur.Amount.Cents ||
			(prev.Amount.Cents == cur.Amount.Cents && prev.Name > cur.Name) {
			t.Fatalf("not sorted at %d: %+v", i, got)
		}
	}
}

func TestSummarizeDefaultTopN(t *testing.T) {
	day := NewDate(2024, 6, 1)
	var in SummaryInput
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		in.Expenses = append(in.Expenses, expense(day, name, int64(100+i)))
	}
	opts := juneOptions()
	opts.TopN = 0
	if got := Summarize(in, opts).TopExpenseCategories; len(got) != DefaultTopCategories {
		t.Fatalf("len = %d", len(got))
	}
}

func TestSummarizeMonthlyTrends(t *testing.T) {
	in := SummaryInput{
		Invoices: []Invoice{
			invoice(NewDate(2024, 5, 20), StatusPaid, Date{}, 30000),
			invoice(NewDate(2023, 9, 1), StatusPaid, Date{}, 10000),
			invoice(NewDate(2023, 6, 30), StatusPaid, Date{}, 99999), // before trailing window
			invoice(NewDate(2024, 5, 21), StatusSent, Date{}, 12345),
		},
		Expenses: []Expense{
			expense(NewDate(2024, 5, 2), "rent", 12000),
			expense(NewDate(2024, 1, 15), "fuel", 2500),
			expense(NewDate(2024, 6, 1), "rent", 12000),
		},
	}

	got := Summarize(in, juneOptions()).MonthlyTrends
	want := []MonthlyTrend{
		{Year: 2023, Month: 9, Income: Money{Cents: 10000}, Net: Money{Cents: 10000}},
		{Year: 2024, Month: 1, Expenses: Money{Cents: 2500}, Net: Money{Cents: -2500}},
		{Year: 2024, Month: 5, Income: Money{Cents: 30000}, Expenses: Money{Cents: 12000}, Net: Money{Cents: 18000}},
		{Year: 2024, Month: 6, Expenses: Money{Cents: 12000}, Net: Money{Cents: -12000}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v", got)
	}
}

func TestSummarizeBankTransactions(t *testing.T) {
	day := NewDate(2024, 6, 5)
	in := SummaryInput{
		Expenses: []Expense{expense(day, "Fuel", 1000)},
		Transactions: []BankTransaction{
			{Date: day, Amount: Money{Cents: 2500}, Direction: Credit, AICategory: "Sales"},
			{Date: day, Amount: Money{Cents: -700}, Direction: Debit, AICategory: "Fuel"},
			{Date: day, Amount: Money{Cents: -9900}, Direction: Debit},
		},
	}

	opts := juneOptions()
	without := Summarize(in, opts)
	if without.TotalIncome.Cents != 0 || without.TotalExpenses.Cents != 1000 {
		t.Fatalf("bank transactions counted while disabled: %+v", without)
	}

	opts.IncludeBankTransactions = true
	with := Summarize(in, opts)
	if with.TotalIncome.Cents != 2500 || with.TotalExpenses.Cents != 1700 {
		t.Fatalf("income=%s expenses=%s", with.TotalIncome, with.TotalExpenses)
	}
	want := []CategoryAmount{{Name: "Fuel", Amount: Money{Cents: 1700}, Count: 2}}
	if !reflect.DeepEqual(with.TopExpenseCategories, want) {
		t.Fatalf("categories = %+v", with.TopExpenseCategories)
	}
	if len(with.MonthlyTrends) != 1 || with.MonthlyTrends[0].Net.Cents != 800 {
		t.Fatalf("trends = %+v", with.MonthlyTrends)
	}
}
