package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"expense-ledger/internal/report"
)

// ReportCategoryItem represents a category with its spending statistics.
type ReportCategoryItem struct {
	report.CategoryTotal
	Percentage    float64
	CategoryStyle CategoryStyle
}

// ReportMonthItem is one row of the month summary.
type ReportMonthItem struct {
	report.MonthTotal
	Percentage float64
}

// ReportsViewModel is the data passed to the reports template.
type ReportsViewModel struct {
	OverallTotal decimal.Decimal
	Count        int
	Categories   []ReportCategoryItem
	Months       []ReportMonthItem
}

// Reports renders the category and month summaries of the current user.
func (h *Handlers) Reports(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	expenses, err := h.store.ListExpenses(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, "Failed to list expenses", err)
		return
	}

	summary := report.Summarize(expenses)
	vm := ReportsViewModel{
		OverallTotal: summary.OverallTotal,
		Count:        len(expenses),
		Categories:   make([]ReportCategoryItem, 0, len(summary.ByCategory)),
		Months:       make([]ReportMonthItem, 0, len(summary.ByMonth)),
	}
	for _, c := range summary.ByCategory {
		vm.Categories = append(vm.Categories, ReportCategoryItem{
			CategoryTotal: c,
			Percentage:    report.Share(c.Total, summary.OverallTotal),
			CategoryStyle: getCategoryStyle(c.Category),
		})
	}
	for _, m := range summary.ByMonth {
		vm.Months = append(vm.Months, ReportMonthItem{
			MonthTotal: m,
			Percentage: report.Share(m.Total, summary.OverallTotal),
		})
	}

	h.render(w, r, http.StatusOK, "reports.html", vm)
}
