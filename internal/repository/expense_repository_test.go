package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoyq/invoyq-api/internal/models"
)

func TestExpenseListAppliesFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	now := time.Now()
	from := now.AddDate(0, -1, 0)
	rows := sqlmock.NewRows([]string{"id", "user_id", "category", "description", "amount", "currency", "vendor", "date", "receipt_url", "tags", "created_at", "updated_at"}).
		AddRow("e1", "u1", "travel", "taxi", 30.0, "USD", nil, now, nil, "{}", now, now)

	mock.ExpectQuery("SELECT (.+) FROM expenses WHERE user_id = \\$1 AND category = \\$2 AND date >= \\$3 ORDER BY date DESC").
		WithArgs("u1", "travel", from).
		WillReturnRows(rows)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM expenses WHERE user_id = \\$1 AND category = \\$2 AND date >= \\$3").
		WithArgs("u1", "travel", from).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	expenses, total, err := repo.List(context.Background(), "u1", models.ExpenseFilter{Category: "travel", From: &from})
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, "travel", expenses[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseSummaryTotalsFromCategoryRows(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	categoryRows := sqlmock.NewRows([]string{"category", "count", "amount"}).
		AddRow("travel", 3, 120.50).
		AddRow("office", 2, 80.00)
	mock.ExpectQuery("SELECT category, COUNT\\(\\*\\) AS count").
		WithArgs("u1").
		WillReturnRows(categoryRows)

	monthRows := sqlmock.NewRows([]string{"month", "amount"}).
		AddRow("2026-07", 90.50).
		AddRow("2026-08", 110.00)
	mock.ExpectQuery("SELECT to_char").
		WithArgs("u1").
		WillReturnRows(monthRows)

	summary, err := repo.Summary(context.Background(), "u1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.TotalCount)
	assert.InDelta(t, 200.50, summary.TotalAmount, 0.001)
	assert.Len(t, summary.ByCategory, 2)
	assert.Len(t, summary.ByMonth, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExpenseDeleteReportsMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewExpenseRepository(db)

	mock.ExpectExec("DELETE FROM expenses").
		WithArgs("e1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.Delete(context.Background(), "u1", "e1")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
