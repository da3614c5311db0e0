package http

import (
	"fmt"
	"net/http"

	"finlight/internal/auth"
	"finlight/internal/core"
	"finlight/internal/services"
)

type periodDTO struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type categoryAmountDTO struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
	Count    int    `json:"count"`
}

type monthlyTrendDTO struct {
	Month    string `json:"month"`
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	NetFlow  string `json:"netFlow"`
}

type dashboardSummaryDTO struct {
	Period               periodDTO           `json:"period"`
	TrendPeriod          periodDTO           `json:"trendPeriod"`
	TotalIncome          string              `json:"totalIncome"`
	TotalExpenses        string              `json:"totalExpenses"`
	NetCashFlow          string              `json:"netCashFlow"`
	PendingInvoices      int                 `json:"pendingInvoices"`
	OverdueInvoices      int                 `json:"overdueInvoices"`
	TopExpenseCategories []categoryAmountDTO `json:"topExpenseCategories"`
	MonthlyTrends        []monthlyTrendDTO   `json:"monthlyTrends"`
}

func newPeriodDTO(r core.DateRange) periodDTO {
	return periodDTO{From: r.From.String(), To: r.To.String()}
}

func newDashboardSummaryDTO(s core.DashboardSummary) dashboardSummaryDTO {
	out := dashboardSummaryDTO{
		Period:               newPeriodDTO(s.Period),
		TrendPeriod:          newPeriodDTO(s.TrendPeriod),
		TotalIncome:          s.TotalIncome.String(),
		TotalExpenses:        s.TotalExpenses.String(),
		NetCashFlow:          s.NetCashFlow.String(),
		PendingInvoices:      s.PendingInvoices,
		OverdueInvoices:      s.OverdueInvoices,
		TopExpenseCategories: make([]categoryAmountDTO, 0, len(s.TopExpenseCategories)),
		MonthlyTrends:        make([]monthlyTrendDTO, 0, len(s.MonthlyTrends)),
	}
	for _, c := range s.TopExpenseCategories {
		out.TopExpenseCategories = append(out.TopExpenseCategories, categoryAmountDTO{
			Category: c.Name,
			Amount:   c.Amount.String(),
			Count:    c.Count,
		})
	}
	for _, t := range s.MonthlyTrends {
		out.MonthlyTrends = append(out.MonthlyTrends, monthlyTrendDTO{
			Month:    t.Label(),
			Income:   t.Income.String(),
			Expenses: t.Expenses.String(),
			NetFlow:  t.Net.String(),
		})
	}
	return out
}

// handleDashboardSummary serves GET /dashboard/summary?businessId=&from=&to=.
func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, r, fmt.Errorf("%w: no principal", core.ErrUnauthenticated))
		return
	}

	q := r.URL.Query()
	query, err := services.ParseSummaryQuery(q.Get("businessId"), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.dashboard.Summary(r.Context(), principal.UserID, query)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeData(w, "Dashboard summary retrieved successfully", newDashboardSummaryDTO(summary))
}
