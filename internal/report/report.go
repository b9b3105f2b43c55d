// Package report computes spending summaries over one owner's expenses.
//
// Every function is pure: it reads the slice it is given, allocates new
// results, and never mutates its input, so it is safe to call concurrently.
package report

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"expense-ledger/internal/models"
)

// CategoryTotal is the spending for one category label.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// MonthTotal is the spending for one YYYY-MM month key.
type MonthTotal struct {
	Month string
	Total decimal.Decimal
	Count int
}

// Summary bundles the figures shown on the reports page.
type Summary struct {
	Total        decimal.Decimal
	OverallTotal decimal.Decimal
	ByCategory   []CategoryTotal
	ByMonth      []MonthTotal
}

// Total returns the sum of all amounts, zero for no expenses.
func Total(expenses []models.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// ByCategory groups expenses by category. Groups are ordered by total
// descending, then by label.
func ByCategory(expenses []models.Expense) []CategoryTotal {
	index := make(map[string]int)
	groups := make([]CategoryTotal, 0)

	for _, e := range expenses {
		label := strings.TrimSpace(e.Category)
		if label == "" {
			label = models.DefaultCategory
		}
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, CategoryTotal{Category: label, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(e.Amount)
		groups[i].Count++
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if c := groups[i].Total.Cmp(groups[j].Total); c != 0 {
			return c > 0
		}
		return groups[i].Category < groups[j].Category
	})
	return groups
}

// ByMonth groups expenses by the YYYY-MM prefix of their date, ascending.
// Malformed dates are grouped by whatever prefix they have.
func ByMonth(expenses []models.Expense) []MonthTotal {
	index := make(map[string]int)
	groups := make([]MonthTotal, 0)

	for _, e := range expenses {
		key := e.Month()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, MonthTotal{Month: key, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(e.Amount)
		groups[i].Count++
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].Month < groups[j].Month })
	return groups
}

// OverallTotal sums the category group totals. For groups produced by
// ByCategory it equals Total over the same expenses.
func OverallTotal(groups []CategoryTotal) decimal.Decimal {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.Total)
	}
	return total
}

// Summarize computes the figures shown on the reports page.
func Summarize(expenses []models.Expense) Summary {
	byCategory := ByCategory(expenses)
	return Summary{
		Total:        Total(expenses),
		OverallTotal: OverallTotal(byCategory),
		ByCategory:   byCategory,
		ByMonth:      ByMonth(expenses),
	}
}

// Share returns part as a percentage of whole, or 0 when whole is zero.
func Share(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
}
