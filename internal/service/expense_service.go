package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type expenseRepository interface {
	List(ctx context.Context, userID string, filter models.ExpenseFilter) ([]models.Expense, int, error)
	FindByID(ctx context.Context, userID, id string) (*models.Expense, error)
	Create(ctx context.Context, expense *models.Expense) error
	Update(ctx context.Context, expense *models.Expense) error
	Delete(ctx context.Context, userID, id string) (bool, error)
	Summary(ctx context.Context, userID string, from, to *time.Time) (*models.ExpenseSummary, error)
}

// ExpenseService tracks business expenses. Categories are normalised to
// lowercase so the summary groups cleanly.
type ExpenseService struct {
	repo      expenseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExpenseService constructs an ExpenseService instance.
func NewExpenseService(repo expenseRepository, validate *validator.Validate, logger *zap.Logger) *ExpenseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ExpenseService{repo: repo, validator: validate, logger: logger}
}

// List returns expenses for the user with pagination metadata.
func (s *ExpenseService) List(ctx context.Context, userID string, filter models.ExpenseFilter) ([]models.Expense, *models.Pagination, error) {
	filter.Category = normalizeCategory(filter.Category)
	expenses, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list expenses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return expenses, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one expense owned by the user.
func (s *ExpenseService) Get(ctx context.Context, userID, id string) (*models.Expense, error) {
	expense, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "expense not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch expense")
	}
	return expense, nil
}

// Create stores a new expense.
func (s *ExpenseService) Create(ctx context.Context, userID string, expense *models.Expense) (*models.Expense, error) {
	if err := normalizeExpense(expense); err != nil {
		return nil, err
	}
	expense.UserID = userID
	if err := s.repo.Create(ctx, expense); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create expense")
	}
	return expense, nil
}

// Update applies changes to an existing expense.
func (s *ExpenseService) Update(ctx context.Context, userID, id string, update *models.Expense) (*models.Expense, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if update.Category != "" {
		existing.Category = update.Category
	}
	if update.Description != "" {
		existing.Description = update.Description
	}
	if update.Amount > 0 {
		existing.Amount = update.Amount
	}
	if update.Currency != "" {
		existing.Currency = update.Currency
	}
	if update.Vendor != nil {
		existing.Vendor = update.Vendor
	}
	if !update.Date.IsZero() {
		existing.Date = update.Date
	}
	if update.ReceiptURL != nil {
		existing.ReceiptURL = update.ReceiptURL
	}
	if update.Tags != nil {
		existing.Tags = update.Tags
	}

	if err := normalizeExpense(existing); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update expense")
	}
	return existing, nil
}

// Delete removes an expense owned by the user.
func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete expense")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "expense not found")
	}
	return nil
}

// Summary returns spending aggregates for the dashboard.
func (s *ExpenseService) Summary(ctx context.Context, userID string, from, to *time.Time) (*models.ExpenseSummary, error) {
	summary, err := s.repo.Summary(ctx, userID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute expense summary")
	}
	return summary, nil
}

func normalizeExpense(expense *models.Expense) error {
	expense.Category = normalizeCategory(expense.Category)
	expense.Description = strings.TrimSpace(expense.Description)
	expense.Currency = strings.ToUpper(strings.TrimSpace(expense.Currency))
	expense.Tags = dedupeTags(expense.Tags)

	if expense.Category == "" {
		return appErrors.Clone(appErrors.ErrValidation, "expense category is required")
	}
	if expense.Amount <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "expense amount must be positive")
	}
	if expense.Date.IsZero() {
		expense.Date = time.Now().UTC()
	}
	if expense.Currency == "" {
		expense.Currency = "USD"
	}
	return nil
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	result := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		result = append(result, tag)
	}
	return result
}
