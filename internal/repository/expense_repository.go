package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/invoyq/invoyq-api/internal/models"
)

// ExpenseRepository provides database access for expenses.
type ExpenseRepository struct {
	db *sqlx.DB
}

// NewExpenseRepository creates a new instance of ExpenseRepository.
func NewExpenseRepository(db *sqlx.DB) *ExpenseRepository {
	return &ExpenseRepository{db: db}
}

const expenseColumns = `id, user_id, category, description, amount, currency, vendor, date, receipt_url, tags, created_at, updated_at`

// List returns the user's expenses matching the filter with a total count.
func (r *ExpenseRepository) List(ctx context.Context, userID string, filter models.ExpenseFilter) ([]models.Expense, int, error) {
	baseQuery := `FROM expenses WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Category != "" {
		baseQuery += fmt.Sprintf(" AND category = $%d", len(args)+1)
		args = append(args, filter.Category)
	}
	if filter.From != nil {
		baseQuery += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		baseQuery += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *filter.To)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY date DESC LIMIT %d OFFSET %d", expenseColumns, baseQuery, pageSize, offset)

	var expenses []models.Expense
	if err := r.db.SelectContext(ctx, &expenses, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list expenses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	return expenses, total, nil
}

// FindByID returns an expense owned by the given user.
func (r *ExpenseRepository) FindByID(ctx context.Context, userID, id string) (*models.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE id = $1 AND user_id = $2 LIMIT 1`
	var expense models.Expense
	if err := r.db.GetContext(ctx, &expense, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find expense by id: %w", err)
	}
	return &expense, nil
}

// Create inserts a new expense.
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	expense.CreatedAt = now
	expense.UpdatedAt = now

	const query = `INSERT INTO expenses (id, user_id, category, description, amount, currency, vendor, date, receipt_url, tags, created_at, updated_at)
		VALUES (:id, :user_id, :category, :description, :amount, :currency, :vendor, :date, :receipt_url, :tags, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("create expense: %w", err)
	}
	return nil
}

// Update updates mutable fields of an expense scoped to its owner.
func (r *ExpenseRepository) Update(ctx context.Context, expense *models.Expense) error {
	expense.UpdatedAt = time.Now().UTC()
	const query = `UPDATE expenses SET category = :category, description = :description, amount = :amount, currency = :currency,
		vendor = :vendor, date = :date, receipt_url = :receipt_url, tags = :tags, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, expense); err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	return nil
}

// Delete removes an expense owned by the given user.
func (r *ExpenseRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	const query = `DELETE FROM expenses WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	return affected > 0, nil
}

// Summary aggregates spending by category and month for a user within the
// optional date range.
func (r *ExpenseRepository) Summary(ctx context.Context, userID string, from, to *time.Time) (*models.ExpenseSummary, error) {
	baseQuery := `FROM expenses WHERE user_id = $1`
	args := []interface{}{userID}
	if from != nil {
		baseQuery += fmt.Sprintf(" AND date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		baseQuery += fmt.Sprintf(" AND date <= $%d", len(args)+1)
		args = append(args, *to)
	}

	summary := &models.ExpenseSummary{}

	categoryQuery := fmt.Sprintf("SELECT category, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS amount %s GROUP BY category ORDER BY amount DESC", baseQuery)
	if err := r.db.SelectContext(ctx, &summary.ByCategory, categoryQuery, args...); err != nil {
		return nil, fmt.Errorf("expense summary by category: %w", err)
	}

	monthQuery := fmt.Sprintf("SELECT to_char(date_trunc('month', date), 'YYYY-MM') AS month, COALESCE(SUM(amount), 0) AS amount %s GROUP BY 1 ORDER BY 1", baseQuery)
	if err := r.db.SelectContext(ctx, &summary.ByMonth, monthQuery, args...); err != nil {
		return nil, fmt.Errorf("expense summary by month: %w", err)
	}

	for _, row := range summary.ByCategory {
		summary.TotalCount += row.Count
		summary.TotalAmount += row.Amount
	}
	return summary, nil
}
