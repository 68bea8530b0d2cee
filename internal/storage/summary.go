package storage

import (
	"context"
	"fmt"

	"kakeibo/internal/models"
)

// Date columns are read through CAST(date AS TEXT) so the same statements
// run on sqlite TEXT and postgres DATE columns.

// MonthlySummary sums income and expense per calendar month, latest month first.
func (db *DB) MonthlySummary(ctx context.Context, userID int64) ([]models.MonthlySummaryRow, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT
			SUBSTR(CAST(date AS TEXT), 1, 7) AS month,
			CAST(COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0) AS BIGINT) AS total_income,
			CAST(COALESCE(SUM(CASE WHEN type = 'expense' THEN amount ELSE 0 END), 0) AS BIGINT) AS total_expense
		FROM records
		WHERE user_id = ?
		GROUP BY month
		ORDER BY month DESC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}
	defer rows.Close()

	var summary []models.MonthlySummaryRow
	for rows.Next() {
		var r models.MonthlySummaryRow
		if err := rows.Scan(&r.Month, &r.TotalIncome, &r.TotalExpense); err != nil {
			return nil, fmt.Errorf("scan monthly summary: %w", err)
		}
		summary = append(summary, r)
	}
	return summary, rows.Err()
}

// CategorySummary sums expenses per year and category, ordered by year
// descending then category ascending.
func (db *DB) CategorySummary(ctx context.Context, userID int64) ([]models.CategorySummaryRow, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT
			CAST(SUBSTR(CAST(date AS TEXT), 1, 4) AS INTEGER) AS year,
			category,
			CAST(SUM(amount) AS BIGINT) AS total_expense
		FROM records
		WHERE user_id = ?
		  AND type = 'expense'
		GROUP BY year, category
		ORDER BY year DESC, category ASC
	`), userID)
	if err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	defer rows.Close()

	var summary []models.CategorySummaryRow
	for rows.Next() {
		var r models.CategorySummaryRow
		if err := rows.Scan(&r.Year, &r.Category, &r.TotalExpense); err != nil {
			return nil, fmt.Errorf("scan category summary: %w", err)
		}
		summary = append(summary, r)
	}
	return summary, rows.Err()
}

// BalanceSummary aggregates income, commute expense and other expense per
// year, latest year first. The derived columns are computed after the rows
// are fetched.
func (db *DB) BalanceSummary(ctx context.Context, userID int64, commuteCategory string) ([]models.BalanceSummaryRow, error) {
	rows, err := db.conn.QueryContext(ctx, db.rebind(`
		SELECT
			CAST(SUBSTR(CAST(date AS TEXT), 1, 4) AS INTEGER) AS year,
			CAST(COALESCE(SUM(CASE WHEN type = 'income' THEN amount ELSE 0 END), 0) AS BIGINT) AS income,
			CAST(COALESCE(SUM(CASE WHEN type = 'expense' AND category = ? THEN amount ELSE 0 END), 0) AS BIGINT) AS transport,
			CAST(COALESCE(SUM(CASE WHEN type = 'expense' AND category <> ? THEN amount ELSE 0 END), 0) AS BIGINT) AS other_expense
		FROM records
		WHERE user_id = ?
		GROUP BY year
		ORDER BY year DESC
	`), commuteCategory, commuteCategory, userID)
	if err != nil {
		return nil, fmt.Errorf("balance summary: %w", err)
	}
	defer rows.Close()

	var summary []models.BalanceSummaryRow
	for rows.Next() {
		var r models.BalanceSummaryRow
		if err := rows.Scan(&r.Year, &r.Income, &r.Transport, &r.OtherExpense); err != nil {
			return nil, fmt.Errorf("scan balance summary: %w", err)
		}
		r.Derive()
		summary = append(summary, r)
	}
	return summary, rows.Err()
}
