package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Invoice statuses. Transitions are linear draft -> sent -> paid, with
// overdue/cancelled as side exits; paid and cancelled are terminal.
const (
	InvoiceStatusDraft     = "draft"
	InvoiceStatusSent      = "sent"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// ValidInvoiceStatus reports whether s is a known status value.
func ValidInvoiceStatus(s string) bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// InvoiceItem is one line of an invoice. When sourced from the product
// catalog, ProductID references the product and the price fields are a
// snapshot taken at creation time.
type InvoiceItem struct {
	ProductID   *string `json:"product_id,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"`
	Amount      float64 `json:"amount"`
}

// InvoiceItems stores line items as a JSONB document.
type InvoiceItems []InvoiceItem

func (i InvoiceItems) Value() (driver.Value, error) {
	if i == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(i)
}

func (i *InvoiceItems) Scan(src interface{}) error {
	return scanJSON(src, i)
}

// InvoiceEvent is one audit-trail entry (created, sent, paid, status_changed,
// updated, reminder_sent).
type InvoiceEvent struct {
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
	Details   JSONMap   `json:"details,omitempty"`
}

// InvoiceEvents stores the audit trail as a JSONB document.
type InvoiceEvents []InvoiceEvent

func (e InvoiceEvents) Value() (driver.Value, error) {
	if e == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(e)
}

func (e *InvoiceEvents) Scan(src interface{}) error {
	return scanJSON(src, e)
}

// Invoice is an issued or draft invoice owned by a user.
type Invoice struct {
	ID          string        `db:"id" json:"id"`
	UserID      string        `db:"user_id" json:"-"`
	ClientID    string        `db:"client_id" json:"client_id"`
	Number      string        `db:"number" json:"number"`
	Status      string        `db:"status" json:"status"`
	IssuedDate  *time.Time    `db:"issued_date" json:"issued_date,omitempty"`
	DueDate     *time.Time    `db:"due_date" json:"due_date,omitempty"`
	Currency    string        `db:"currency" json:"currency"`
	Subtotal    float64       `db:"subtotal" json:"subtotal"`
	Tax         float64       `db:"tax" json:"tax"`
	Total       float64       `db:"total" json:"total"`
	Notes       *string       `db:"notes" json:"notes,omitempty"`
	PDFURL      *string       `db:"pdf_url" json:"pdf_url,omitempty"`
	PaymentLink *string       `db:"payment_link" json:"payment_link,omitempty"`
	Items       InvoiceItems  `db:"items" json:"items"`
	Events      InvoiceEvents `db:"events" json:"events,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// InvoiceItemInput is one requested line item. With ProductID set the
// description and price fields are snapshotted from the catalog; otherwise
// they are taken as given.
type InvoiceItemInput struct {
	ProductID   *string `json:"product_id,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unit_price"`
	TaxRate     float64 `json:"tax_rate"`
}

// InvoiceCreateRequest creates a draft invoice.
type InvoiceCreateRequest struct {
	ClientID string             `json:"client_id" validate:"required"`
	Currency string             `json:"currency"`
	DueDate  *time.Time         `json:"due_date,omitempty"`
	Notes    *string            `json:"notes,omitempty"`
	Items    []InvoiceItemInput `json:"items" validate:"required,min=1,dive"`
}

// InvoiceUpdateRequest edits a draft invoice. Nil fields are left unchanged;
// a non-nil Items slice replaces the line items and recomputes totals.
type InvoiceUpdateRequest struct {
	DueDate *time.Time         `json:"due_date,omitempty"`
	Notes   *string            `json:"notes,omitempty"`
	Items   []InvoiceItemInput `json:"items,omitempty" validate:"omitempty,min=1,dive"`
}

// InvoiceStatusRequest moves an invoice through its lifecycle.
type InvoiceStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// InvoiceFilter captures list criteria for invoices.
type InvoiceFilter struct {
	Status   string
	ClientID string
	Page     int
	PageSize int
}

// InvoiceStatusCount is one row of the status breakdown aggregate.
type InvoiceStatusCount struct {
	Status string  `db:"status" json:"status"`
	Count  int     `db:"count" json:"count"`
	Amount float64 `db:"amount" json:"amount"`
}

// InvoiceSummary aggregates invoice counts and amounts for the dashboard.
type InvoiceSummary struct {
	TotalCount  int                  `json:"total_count"`
	TotalAmount float64              `json:"total_amount"`
	PaidAmount  float64              `json:"paid_amount"`
	DueAmount   float64              `json:"due_amount"`
	ByStatus    []InvoiceStatusCount `json:"by_status"`
}
