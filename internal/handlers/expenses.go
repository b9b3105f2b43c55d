package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expense-ledger/internal/models"
	"expense-ledger/internal/report"
	"expense-ledger/internal/storage"
)

// CategoryDef is a suggested category offered by the expense form.
type CategoryDef struct {
	Name  string
	Icon  string
	Color string
}

var categories = []CategoryDef{
	{"Food", "🍽️", "#60a5fa"},
	{"Transport", "🚌", "#a78bfa"},
	{"Entertainment", "🎮", "#f472b6"},
	{"Utilities", "💡", "#fbbf24"},
	{"Housing", "🏠", "#818cf8"},
	{"Gifts", "🎁", "#fb7185"},
	{models.DefaultCategory, "📦", "#94a3b8"},
}

// CategoryStyle defines the visual style for a category.
type CategoryStyle struct {
	Icon  string
	Color string
}

// Categories are free text; anything unknown gets the default look.
func getCategoryStyle(category string) CategoryStyle {
	for _, c := range categories {
		if strings.EqualFold(c.Name, category) {
			return CategoryStyle{Icon: c.Icon, Color: c.Color}
		}
	}
	return CategoryStyle{Icon: "📦", Color: "#94a3b8"}
}

// ExpenseItem represents an expense in the list view.
type ExpenseItem struct {
	models.Expense
	CategoryStyle CategoryStyle
}

// ExpenseGroup groups expenses by date.
type ExpenseGroup struct {
	Title string
	Date  string
	Total decimal.Decimal
	Items []ExpenseItem
}

// ChartSlice is one category bar of the spending chart.
type ChartSlice struct {
	Label string
	Total decimal.Decimal
	Share float64
	Color string
}

// ListViewModel is the data passed to the list view template.
type ListViewModel struct {
	Total  decimal.Decimal
	Count  int
	Groups []ExpenseGroup
	Chart  []ChartSlice
}

// ExpenseForm carries the raw form values so a rejected submission can be
// shown again as typed.
type ExpenseForm struct {
	Title    string
	Category string
	Amount   string
	Date     string
}

// FormViewModel is the data passed to the create/edit form template.
type FormViewModel struct {
	ID         uuid.UUID
	IsEdit     bool
	Form       ExpenseForm
	Error      string
	Categories []CategoryDef
}

// Action is the URL the form posts to.
func (vm FormViewModel) Action() string {
	if vm.IsEdit {
		return "/expenses/" + vm.ID.String()
	}
	return "/expenses"
}

// ListExpenses renders the owner's expenses grouped by day.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	expenses, err := h.store.ListExpenses(r.Context(), user.ID)
	if err != nil {
		h.serverError(w, r, "Failed to list expenses", err)
		return
	}

	total := report.Total(expenses)
	vm := ListViewModel{
		Total:  total,
		Count:  len(expenses),
		Groups: groupByDay(expenses, h.now()),
		Chart:  make([]ChartSlice, 0),
	}
	for _, c := range report.ByCategory(expenses) {
		vm.Chart = append(vm.Chart, ChartSlice{
			Label: c.Category,
			Total: c.Total,
			Share: report.Share(c.Total, total),
			Color: getCategoryStyle(c.Category).Color,
		})
	}

	h.render(w, r, http.StatusOK, "list.html", vm)
}

// groupByDay keeps the store's newest-first order; expenses arrive sorted by
// date so each day forms one contiguous run.
func groupByDay(expenses []models.Expense, now time.Time) []ExpenseGroup {
	groups := make([]ExpenseGroup, 0)
	for _, e := range expenses {
		if n := len(groups); n == 0 || groups[n-1].Date != e.Date {
			groups = append(groups, ExpenseGroup{Date: e.Date, Title: formatGroupTitle(e.Date, now)})
		}
		g := &groups[len(groups)-1]
		g.Total = g.Total.Add(e.Amount)
		g.Items = append(g.Items, ExpenseItem{Expense: e, CategoryStyle: getCategoryStyle(e.Category)})
	}
	return groups
}

func formatGroupTitle(date string, now time.Time) string {
	switch date {
	case now.Format(models.DateLayout):
		return "TODAY"
	case now.AddDate(0, 0, -1).Format(models.DateLayout):
		return "YESTERDAY"
	}
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return strings.ToUpper(t.Format("Mon, 02 Jan '06"))
}

// NewExpenseForm renders the form to create a new expense.
func (h *Handlers) NewExpenseForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "form.html", FormViewModel{
		Form:       ExpenseForm{Date: h.now().Format(models.DateLayout)},
		Categories: categories,
	})
}

// CreateExpense handles the creation of a new expense.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	form, e, err := h.parseExpenseForm(r)
	if err != nil {
		h.render(w, r, http.StatusBadRequest, "form.html", FormViewModel{
			Form: form, Error: formError(err), Categories: categories,
		})
		return
	}

	e.OwnerID = user.ID
	if err := e.Validate(); err != nil {
		h.render(w, r, http.StatusBadRequest, "form.html", FormViewModel{
			Form: form, Error: formError(err), Categories: categories,
		})
		return
	}
	if err := h.store.CreateExpense(r.Context(), e); err != nil {
		h.serverError(w, r, "Failed to create expense", err)
		return
	}

	h.logger(r).Info().Str("expense_id", e.ID.String()).Msg("Expense created")
	h.setFlash(w, FlashSuccess, "Expense added")
	h.redirect(w, r, "/expenses")
}

// EditExpenseForm renders the form to edit an existing expense.
func (h *Handlers) EditExpenseForm(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}

	e, err := h.store.GetExpense(r.Context(), user.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "Expense not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "Failed to load expense", err)
		return
	}

	h.render(w, r, http.StatusOK, "form.html", FormViewModel{
		ID:     e.ID,
		IsEdit: true,
		Form: ExpenseForm{
			Title:    e.Title,
			Category: e.Category,
			Amount:   e.Amount.StringFixed(2),
			Date:     e.Date,
		},
		Categories: categories,
	})
}

// UpdateExpense handles the update of an existing expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}

	form, e, err := h.parseExpenseForm(r)
	if err == nil {
		e.ID, e.OwnerID = id, user.ID
		err = e.Validate()
	}
	if err != nil {
		h.render(w, r, http.StatusBadRequest, "form.html", FormViewModel{
			ID: id, IsEdit: true, Form: form, Error: formError(err), Categories: categories,
		})
		return
	}

	err = h.store.UpdateExpense(r.Context(), e)
	if errors.Is(err, storage.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "Expense not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "Failed to update expense", err)
		return
	}

	h.logger(r).Info().Str("expense_id", id.String()).Msg("Expense updated")
	h.setFlash(w, FlashSuccess, "Expense updated")
	h.redirect(w, r, "/expenses")
}

// DeleteExpense removes an expense of the current user.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	id, ok := h.expenseID(w, r)
	if !ok {
		return
	}

	err := h.store.DeleteExpense(r.Context(), user.ID, id)
	if errors.Is(err, storage.ErrNotFound) {
		h.renderError(w, r, http.StatusNotFound, "Expense not found")
		return
	}
	if err != nil {
		h.serverError(w, r, "Failed to delete expense", err)
		return
	}

	h.logger(r).Info().Str("expense_id", id.String()).Msg("Expense deleted")
	h.setFlash(w, FlashSuccess, "Expense deleted")
	h.redirect(w, r, "/expenses")
}

// expenseID parses the {id} path value. A malformed id is the client's
// mistake and is answered with 400.
func (h *Handlers) expenseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid expense id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) parseExpenseForm(r *http.Request) (ExpenseForm, *models.Expense, error) {
	if err := r.ParseForm(); err != nil {
		return ExpenseForm{}, nil, errInvalidForm
	}
	form := ExpenseForm{
		Title:    r.FormValue("title"),
		Category: r.FormValue("category"),
		Amount:   r.FormValue("amount"),
		Date:     r.FormValue("date"),
	}

	amount, err := models.ParseAmount(form.Amount)
	if err != nil {
		return form, nil, err
	}
	date, err := models.ParseDate(form.Date, h.now())
	if err != nil {
		return form, nil, err
	}

	e := &models.Expense{
		Title:    form.Title,
		Category: form.Category,
		Amount:   amount,
		Date:     date,
	}
	e.Normalize()
	return form, e, nil
}

var errInvalidForm = errors.New("invalid form submission")

func formError(err error) string {
	if models.IsValidationError(err) || errors.Is(err, errInvalidForm) {
		return capitalize(err.Error())
	}
	return "Invalid input"
}
