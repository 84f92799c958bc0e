package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type mockExpenseRepo struct {
	expenses   map[string]*models.Expense
	lastFilter models.ExpenseFilter
}

func newMockExpenseRepo() *mockExpenseRepo {
	return &mockExpenseRepo{expenses: map[string]*models.Expense{}}
}

func (m *mockExpenseRepo) List(ctx context.Context, userID string, filter models.ExpenseFilter) ([]models.Expense, int, error) {
	m.lastFilter = filter
	var out []models.Expense
	for _, e := range m.expenses {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out, len(out), nil
}

func (m *mockExpenseRepo) FindByID(ctx context.Context, userID, id string) (*models.Expense, error) {
	expense, ok := m.expenses[id]
	if !ok || expense.UserID != userID {
		return nil, sql.ErrNoRows
	}
	copied := *expense
	return &copied, nil
}

func (m *mockExpenseRepo) Create(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.NewString()
	}
	stored := *expense
	m.expenses[expense.ID] = &stored
	return nil
}

func (m *mockExpenseRepo) Update(ctx context.Context, expense *models.Expense) error {
	stored := *expense
	m.expenses[expense.ID] = &stored
	return nil
}

func (m *mockExpenseRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	expense, ok := m.expenses[id]
	if !ok || expense.UserID != userID {
		return false, nil
	}
	delete(m.expenses, id)
	return true, nil
}

func (m *mockExpenseRepo) Summary(ctx context.Context, userID string, from, to *time.Time) (*models.ExpenseSummary, error) {
	return &models.ExpenseSummary{TotalCount: len(m.expenses)}, nil
}

func TestCreateExpenseNormalizes(t *testing.T) {
	repo := newMockExpenseRepo()
	svc := NewExpenseService(repo, nil, nil)
	userID := uuid.NewString()

	expense, err := svc.Create(context.Background(), userID, &models.Expense{
		Category:    "  Office Supplies  ",
		Description: "  printer paper ",
		Amount:      42.50,
		Currency:    "usd",
		Tags:        pq.StringArray{"Paper", " paper ", "office", ""},
	})
	require.NoError(t, err)

	assert.Equal(t, "office supplies", expense.Category)
	assert.Equal(t, "printer paper", expense.Description)
	assert.Equal(t, "USD", expense.Currency)
	assert.Equal(t, userID, expense.UserID)
	assert.False(t, expense.Date.IsZero())
	assert.Equal(t, pq.StringArray{"paper", "office"}, expense.Tags)
}

func TestCreateExpenseValidation(t *testing.T) {
	svc := NewExpenseService(newMockExpenseRepo(), nil, nil)
	userID := uuid.NewString()

	_, err := svc.Create(context.Background(), userID, &models.Expense{Amount: 10})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), userID, &models.Expense{Category: "travel", Amount: 0})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), userID, &models.Expense{Category: "travel", Amount: -5})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestUpdateExpenseMergesFields(t *testing.T) {
	repo := newMockExpenseRepo()
	svc := NewExpenseService(repo, nil, nil)
	userID := uuid.NewString()

	created, err := svc.Create(context.Background(), userID, &models.Expense{
		Category: "travel", Description: "taxi", Amount: 30, Currency: "EUR",
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), userID, created.ID, &models.Expense{Amount: 35})
	require.NoError(t, err)
	assert.InDelta(t, 35.0, updated.Amount, 0.001)
	assert.Equal(t, "travel", updated.Category)
	assert.Equal(t, "taxi", updated.Description)
	assert.Equal(t, "EUR", updated.Currency)
}

func TestUpdateExpenseNotFound(t *testing.T) {
	svc := NewExpenseService(newMockExpenseRepo(), nil, nil)

	_, err := svc.Update(context.Background(), uuid.NewString(), uuid.NewString(), &models.Expense{Amount: 5})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestDeleteExpenseNotFound(t *testing.T) {
	repo := newMockExpenseRepo()
	svc := NewExpenseService(repo, nil, nil)
	userID := uuid.NewString()

	created, err := svc.Create(context.Background(), userID, &models.Expense{Category: "travel", Amount: 10})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), userID, created.ID))
	err = svc.Delete(context.Background(), userID, created.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestListExpensesNormalizesCategoryFilter(t *testing.T) {
	repo := newMockExpenseRepo()
	svc := NewExpenseService(repo, nil, nil)

	_, pagination, err := svc.List(context.Background(), uuid.NewString(), models.ExpenseFilter{Category: " Travel "})
	require.NoError(t, err)
	assert.Equal(t, "travel", repo.lastFilter.Category)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
}

func TestDedupeTags(t *testing.T) {
	assert.Nil(t, dedupeTags(nil))
	assert.Nil(t, dedupeTags([]string{}))
	assert.Equal(t, []string{"a", "b"}, dedupeTags([]string{"A", "b", "a", " B ", ""}))
}
