package models

import (
	"time"

	"github.com/lib/pq"
)

// Expense is a business expense entry.
type Expense struct {
	ID          string         `db:"id" json:"id"`
	UserID      string         `db:"user_id" json:"-"`
	Category    string         `db:"category" json:"category"`
	Description string         `db:"description" json:"description"`
	Amount      float64        `db:"amount" json:"amount"`
	Currency    string         `db:"currency" json:"currency"`
	Vendor      *string        `db:"vendor" json:"vendor,omitempty"`
	Date        time.Time      `db:"date" json:"date"`
	ReceiptURL  *string        `db:"receipt_url" json:"receipt_url,omitempty"`
	Tags        pq.StringArray `db:"tags" json:"tags"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ExpenseFilter captures list criteria for expenses.
type ExpenseFilter struct {
	Category string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// ExpenseCategoryTotal is one row of the category breakdown aggregate.
type ExpenseCategoryTotal struct {
	Category string  `db:"category" json:"category"`
	Count    int     `db:"count" json:"count"`
	Amount   float64 `db:"amount" json:"amount"`
}

// ExpenseMonthTotal is one row of the per-month aggregate.
type ExpenseMonthTotal struct {
	Month  string  `db:"month" json:"month"`
	Amount float64 `db:"amount" json:"amount"`
}

// ExpenseSummary aggregates spending for the dashboard.
type ExpenseSummary struct {
	TotalCount  int                    `json:"total_count"`
	TotalAmount float64                `json:"total_amount"`
	ByCategory  []ExpenseCategoryTotal `json:"by_category"`
	ByMonth     []ExpenseMonthTotal    `json:"by_month"`
}
