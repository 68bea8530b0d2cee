package handlers

import (
	"net/http"

	"kakeibo/internal/models"
)

// MonthlyViewModel is the data passed to the monthly summary template.
type MonthlyViewModel struct {
	Rows         []models.MonthlySummaryRow
	TotalIncome  int64
	TotalExpense int64
}

// CategoryShare is a category row with its share of the year's expenses.
type CategoryShare struct {
	models.CategorySummaryRow
	Icon       string
	Percentage float64
}

// CategoryYear groups category rows of one year.
type CategoryYear struct {
	Year       int
	Total      int64
	Categories []CategoryShare
}

// CategoryViewModel is the data passed to the category summary template.
type CategoryViewModel struct {
	Years []CategoryYear
}

// BalanceViewModel is the data passed to the balance summary template.
type BalanceViewModel struct {
	Rows            []models.BalanceSummaryRow
	CommuteCategory string
}

// MonthlySummary renders income and expense totals per month.
func (h *Handlers) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	rows, err := h.db.MonthlySummary(r.Context(), session.UserID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	vm := MonthlyViewModel{Rows: rows}
	for _, row := range rows {
		vm.TotalIncome += row.TotalIncome
		vm.TotalExpense += row.TotalExpense
	}

	h.render(w, r, "monthly_summary.html", "月別集計", vm)
}

// CategorySummary renders expense totals per year and category.
func (h *Handlers) CategorySummary(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	rows, err := h.db.CategorySummary(r.Context(), session.UserID)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, "category_summary.html", "カテゴリ別集計", CategoryViewModel{
		Years: groupCategoryYears(rows),
	})
}

// groupCategoryYears relies on rows being ordered by year.
func groupCategoryYears(rows []models.CategorySummaryRow) []CategoryYear {
	var years []CategoryYear
	for _, row := range rows {
		if len(years) == 0 || years[len(years)-1].Year != row.Year {
			years = append(years, CategoryYear{Year: row.Year})
		}
		y := &years[len(years)-1]
		y.Total += row.TotalExpense
		y.Categories = append(y.Categories, CategoryShare{
			CategorySummaryRow: row,
			Icon:               categoryIcon(row.Category),
		})
	}

	// Calculate percentages once the yearly totals are known
	for i := range years {
		for j := range years[i].Categories {
			if years[i].Total > 0 {
				c := &years[i].Categories[j]
				c.Percentage = float64(c.TotalExpense) / float64(years[i].Total) * 100
			}
		}
	}
	return years
}

// BalanceSummary renders the yearly balance view.
func (h *Handlers) BalanceSummary(w http.ResponseWriter, r *http.Request) {
	session, _ := SessionFromContext(r.Context())

	rows, err := h.db.BalanceSummary(r.Context(), session.UserID, h.commuteCategory)
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	h.render(w, r, "balance_summary.html", "年間収支", BalanceViewModel{
		Rows:            rows,
		CommuteCategory: h.commuteCategory,
	})
}
