package models

// MonthlySummaryRow holds income and expense totals for one calendar month.
type MonthlySummaryRow struct {
	Month        string // YYYY-MM
	TotalIncome  int64
	TotalExpense int64
}

// CategorySummaryRow holds the expense total of one category in one year.
type CategorySummaryRow struct {
	Year         int
	Category     string
	TotalExpense int64
}

// BalanceSummaryRow is the yearly balance view. Transport is the commute
// expense total; DisposableIncome and Balance are filled by Derive.
type BalanceSummaryRow struct {
	Year             int
	Income           int64
	Transport        int64
	OtherExpense     int64
	DisposableIncome int64
	Balance          int64
}

// Derive computes the two derived totals from the aggregated columns.
func (r *BalanceSummaryRow) Derive() {
	r.DisposableIncome = r.Income - r.Transport
	r.Balance = r.DisposableIncome - r.OtherExpense
}
