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

// InvoiceRepository provides database access for invoices.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository creates a new instance of InvoiceRepository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

const invoiceColumns = `id, user_id, client_id, number, status, issued_date, due_date, currency, subtotal, tax, total, notes, pdf_url, payment_link, items, events, created_at, updated_at`

// List returns the user's invoices matching the filter with a total count.
func (r *InvoiceRepository) List(ctx context.Context, userID string, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	baseQuery := `FROM invoices WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Status != "" {
		baseQuery += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.ClientID != "" {
		baseQuery += fmt.Sprintf(" AND client_id = $%d", len(args)+1)
		args = append(args, filter.ClientID)
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", invoiceColumns, baseQuery, pageSize, offset)

	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	return invoices, total, nil
}

// FindByID returns an invoice owned by the given user.
func (r *InvoiceRepository) FindByID(ctx context.Context, userID, id string) (*models.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 AND user_id = $2 LIMIT 1`
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invoice by id: %w", err)
	}
	return &invoice, nil
}

// Create inserts a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	invoice.CreatedAt = now
	invoice.UpdatedAt = now

	const query = `INSERT INTO invoices (id, user_id, client_id, number, status, issued_date, due_date, currency, subtotal, tax, total, notes, pdf_url, payment_link, items, events, created_at, updated_at)
		VALUES (:id, :user_id, :client_id, :number, :status, :issued_date, :due_date, :currency, :subtotal, :tax, :total, :notes, :pdf_url, :payment_link, :items, :events, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// Update persists mutable fields of an invoice scoped to its owner.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *models.Invoice) error {
	invoice.UpdatedAt = time.Now().UTC()
	const query = `UPDATE invoices SET client_id = :client_id, number = :number, status = :status, issued_date = :issued_date,
		due_date = :due_date, currency = :currency, subtotal = :subtotal, tax = :tax, total = :total, notes = :notes,
		pdf_url = :pdf_url, payment_link = :payment_link, items = :items, events = :events, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, invoice); err != nil {
		return fmt.Errorf("update invoice: %w", err)
	}
	return nil
}

// Delete removes an invoice owned by the given user.
func (r *InvoiceRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	const query = `DELETE FROM invoices WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete invoice: %w", err)
	}
	return affected > 0, nil
}

// CountForUserInMonth returns how many invoices the user created in the month
// containing ts. Used for sequential invoice numbering.
func (r *InvoiceRepository) CountForUserInMonth(ctx context.Context, userID string, ts time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM invoices WHERE user_id = $1 AND date_trunc('month', created_at) = date_trunc('month', $2::timestamptz)`
	var count int
	if err := r.db.GetContext(ctx, &count, query, userID, ts); err != nil {
		return 0, fmt.Errorf("count invoices in month: %w", err)
	}
	return count, nil
}

// Summary aggregates invoice counts and amounts by status for a user. The
// grouping is delegated to the database.
func (r *InvoiceRepository) Summary(ctx context.Context, userID string) (*models.InvoiceSummary, error) {
	const query = `SELECT status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS amount FROM invoices WHERE user_id = $1 GROUP BY status`
	var rows []models.InvoiceStatusCount
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("invoice summary: %w", err)
	}

	summary := &models.InvoiceSummary{ByStatus: rows}
	for _, row := range rows {
		summary.TotalCount += row.Count
		summary.TotalAmount += row.Amount
		switch row.Status {
		case models.InvoiceStatusPaid:
			summary.PaidAmount += row.Amount
		case models.InvoiceStatusSent, models.InvoiceStatusOverdue:
			summary.DueAmount += row.Amount
		}
	}
	return summary, nil
}
