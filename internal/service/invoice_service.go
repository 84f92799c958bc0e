package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type invoiceRepository interface {
	List(ctx context.Context, userID string, filter models.InvoiceFilter) ([]models.Invoice, int, error)
	FindByID(ctx context.Context, userID, id string) (*models.Invoice, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	Update(ctx context.Context, invoice *models.Invoice) error
	Delete(ctx context.Context, userID, id string) (bool, error)
	CountForUserInMonth(ctx context.Context, userID string, ts time.Time) (int, error)
	Summary(ctx context.Context, userID string) (*models.InvoiceSummary, error)
}

type invoiceClientLookup interface {
	FindByID(ctx context.Context, userID, id string) (*models.Client, error)
}

type invoiceProductLookup interface {
	FindByID(ctx context.Context, userID, id string) (*models.Product, error)
	DecrementStock(ctx context.Context, userID, id string, quantity int) (bool, error)
}

type invoiceUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type invoiceRenderer interface {
	Render(invoice *models.Invoice, business *models.User, client *models.Client) ([]byte, error)
}

type pdfStorage interface {
	Save(filename string, data []byte) (string, error)
}

type reminderMailer interface {
	SendInvoiceReminder(ctx context.Context, email, clientName string, invoice *models.Invoice, businessName string) error
}

// InvoiceService owns the invoice lifecycle from draft through payment,
// including numbering, totals, PDF generation and reminders.
type InvoiceService struct {
	repo       invoiceRepository
	clients    invoiceClientLookup
	products   invoiceProductLookup
	users      invoiceUserLookup
	renderer   invoiceRenderer
	storage    pdfStorage
	mailer     reminderMailer
	validator  *validator.Validate
	logger     *zap.Logger
	appBaseURL string
}

// NewInvoiceService constructs an InvoiceService instance.
func NewInvoiceService(repo invoiceRepository, clients invoiceClientLookup, products invoiceProductLookup, users invoiceUserLookup,
	renderer invoiceRenderer, storage pdfStorage, mailer reminderMailer, validate *validator.Validate, logger *zap.Logger, appBaseURL string) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &InvoiceService{
		repo: repo, clients: clients, products: products, users: users,
		renderer: renderer, storage: storage, mailer: mailer,
		validator: validate, logger: logger, appBaseURL: appBaseURL,
	}
}

// List returns invoices for the user with pagination metadata.
func (s *InvoiceService) List(ctx context.Context, userID string, filter models.InvoiceFilter) ([]models.Invoice, *models.Pagination, error) {
	if filter.Status != "" && !models.ValidInvoiceStatus(filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown invoice status")
	}
	invoices, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invoices")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return invoices, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one invoice owned by the user.
func (s *InvoiceService) Get(ctx context.Context, userID, id string) (*models.Invoice, error) {
	invoice, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invoice not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch invoice")
	}
	return invoice, nil
}

// Create builds a draft invoice. Catalog-backed lines snapshot the product's
// description, price and tax rate at creation time and decrement its stock.
func (s *InvoiceService) Create(ctx context.Context, userID string, req models.InvoiceCreateRequest) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}

	client, err := s.clients.FindByID(ctx, userID, req.ClientID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown client")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch client")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	items, itemCurrency, err := s.resolveItems(ctx, userID, req.Items)
	if err != nil {
		return nil, err
	}
	if currency == "" {
		currency = itemCurrency
	}
	if currency == "" {
		currency = "USD"
	}

	number, err := s.nextNumber(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	invoice := &models.Invoice{
		UserID:   userID,
		ClientID: client.ID,
		Number:   number,
		Status:   models.InvoiceStatusDraft,
		DueDate:  req.DueDate,
		Currency: currency,
		Notes:    req.Notes,
		Items:    items,
		Events: models.InvoiceEvents{{
			Action:    "created",
			Timestamp: now,
		}},
	}
	invoice.Subtotal, invoice.Tax, invoice.Total = computeTotals(items)

	if err := s.repo.Create(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invoice")
	}
	return invoice, nil
}

// Update edits a draft. Invoices past draft are immutable except for status
// changes and reminders.
func (s *InvoiceService) Update(ctx context.Context, userID, id string, req models.InvoiceUpdateRequest) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invoice payload")
	}

	invoice, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only draft invoices can be edited")
	}

	if req.DueDate != nil {
		invoice.DueDate = req.DueDate
	}
	if req.Notes != nil {
		invoice.Notes = req.Notes
	}
	if req.Items != nil {
		items, _, err := s.resolveItems(ctx, userID, req.Items)
		if err != nil {
			return nil, err
		}
		invoice.Items = items
		invoice.Subtotal, invoice.Tax, invoice.Total = computeTotals(items)
	}

	invoice.Events = append(invoice.Events, models.InvoiceEvent{
		Action:    "updated",
		Timestamp: time.Now().UTC(),
	})

	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invoice")
	}
	return invoice, nil
}

// Delete removes a draft invoice. Issued invoices are part of the audit trail
// and can only be cancelled.
func (s *InvoiceService) Delete(ctx context.Context, userID, id string) error {
	invoice, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if invoice.Status != models.InvoiceStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft invoices can be deleted")
	}
	if _, err := s.repo.Delete(ctx, userID, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete invoice")
	}
	return nil
}

// invoiceTransitions holds the allowed status moves. Paid and cancelled are
// terminal.
var invoiceTransitions = map[string][]string{
	models.InvoiceStatusDraft:   {models.InvoiceStatusSent, models.InvoiceStatusCancelled},
	models.InvoiceStatusSent:    {models.InvoiceStatusPaid, models.InvoiceStatusOverdue, models.InvoiceStatusCancelled},
	models.InvoiceStatusOverdue: {models.InvoiceStatusPaid, models.InvoiceStatusCancelled},
}

// UpdateStatus moves an invoice through its lifecycle, recording the change in
// the event trail. Sending stamps the issued date.
func (s *InvoiceService) UpdateStatus(ctx context.Context, userID, id string, req models.InvoiceStatusRequest) (*models.Invoice, error) {
	if !models.ValidInvoiceStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown invoice status")
	}

	invoice, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range invoiceTransitions[invoice.Status] {
		if next == req.Status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, appErrors.Clone(appErrors.ErrConflict,
			fmt.Sprintf("cannot move invoice from %s to %s", invoice.Status, req.Status))
	}

	now := time.Now().UTC()
	previous := invoice.Status
	invoice.Status = req.Status
	if req.Status == models.InvoiceStatusSent && invoice.IssuedDate == nil {
		invoice.IssuedDate = &now
	}
	invoice.Events = append(invoice.Events, models.InvoiceEvent{
		Action:    "status_changed",
		Timestamp: now,
		Details:   models.JSONMap{"from": previous, "to": req.Status},
	})

	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update invoice status")
	}
	return invoice, nil
}

// Summary returns the dashboard aggregate for the user's invoices.
func (s *InvoiceService) Summary(ctx context.Context, userID string) (*models.InvoiceSummary, error) {
	summary, err := s.repo.Summary(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute invoice summary")
	}
	return summary, nil
}

// GeneratePDF renders the invoice document, stores it and records its URL.
func (s *InvoiceService) GeneratePDF(ctx context.Context, userID, id string) (*models.Invoice, error) {
	invoice, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	business, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch business profile")
	}
	client, err := s.clients.FindByID(ctx, userID, invoice.ClientID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch client")
	}

	data, err := s.renderer.Render(invoice, business, client)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render invoice pdf")
	}

	filename := fmt.Sprintf("invoices/%s.pdf", invoice.Number)
	stored, err := s.storage.Save(filename, data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store invoice pdf")
	}

	url := strings.TrimRight(s.appBaseURL, "/") + "/static/" + stored
	invoice.PDFURL = &url
	if err := s.repo.Update(ctx, invoice); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save invoice")
	}
	return invoice, nil
}

// SendReminder emails the client about an outstanding invoice and records the
// send in the event trail.
func (s *InvoiceService) SendReminder(ctx context.Context, userID, id string) (*models.Invoice, error) {
	invoice, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status != models.InvoiceStatusSent && invoice.Status != models.InvoiceStatusOverdue {
		return nil, appErrors.Clone(appErrors.ErrConflict, "reminders can only be sent for outstanding invoices")
	}

	client, err := s.clients.FindByID(ctx, userID, invoice.ClientID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch client")
	}
	if client.Email == nil || *client.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "client has no email address")
	}

	business, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch business profile")
	}
	businessName := business.FullName
	if business.CompanyName != nil && *business.CompanyName != "" {
		businessName = *business.CompanyName
	}

	if err := s.mailer.SendInvoiceReminder(ctx, *client.Email, client.Name, invoice, businessName); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send reminder")
	}

	invoice.Events = append(invoice.Events, models.InvoiceEvent{
		Action:    "reminder_sent",
		Timestamp: time.Now().UTC(),
		Details:   models.JSONMap{"to": *client.Email},
	})
	if err := s.repo.Update(ctx, invoice); err != nil {
		s.logger.Warn("failed to record reminder event", zap.String("invoice_id", invoice.ID), zap.Error(err))
	}
	return invoice, nil
}

// resolveItems expands line-item inputs into snapshotted invoice items,
// decrementing catalog stock for product-backed lines. The second return is
// the currency inherited from the first catalog product, if any.
func (s *InvoiceService) resolveItems(ctx context.Context, userID string, inputs []models.InvoiceItemInput) (models.InvoiceItems, string, error) {
	items := make(models.InvoiceItems, 0, len(inputs))
	currency := ""
	for _, input := range inputs {
		if input.Quantity <= 0 {
			return nil, "", appErrors.Clone(appErrors.ErrValidation, "item quantity must be positive")
		}

		item := models.InvoiceItem{
			ProductID:   input.ProductID,
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			UnitPrice:   input.UnitPrice,
			TaxRate:     input.TaxRate,
		}

		if input.ProductID != nil {
			product, err := s.products.FindByID(ctx, userID, *input.ProductID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return nil, "", appErrors.Clone(appErrors.ErrValidation, "unknown product")
				}
				return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch product")
			}
			if !product.IsActive {
				return nil, "", appErrors.Clone(appErrors.ErrValidation, "product is not active")
			}

			item.Description = product.Name
			item.UnitPrice = product.UnitPrice
			item.TaxRate = product.TaxRate
			if currency == "" {
				currency = product.Currency
			}

			quantity := int(math.Ceil(input.Quantity))
			ok, err := s.products.DecrementStock(ctx, userID, product.ID, quantity)
			if err != nil {
				return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve stock")
			}
			if !ok {
				return nil, "", appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("insufficient stock for %s", product.SKU))
			}
		} else {
			if item.Description == "" {
				return nil, "", appErrors.Clone(appErrors.ErrValidation, "item description is required")
			}
			if item.UnitPrice < 0 {
				return nil, "", appErrors.Clone(appErrors.ErrValidation, "item unit price must not be negative")
			}
			if item.TaxRate < 0 || item.TaxRate > 100 {
				return nil, "", appErrors.Clone(appErrors.ErrValidation, "item tax rate must be between 0 and 100")
			}
		}

		item.Amount = round2(item.Quantity * item.UnitPrice)
		items = append(items, item)
	}
	return items, currency, nil
}

// nextNumber produces the sequential invoice number INV-YYYYMM-NNNN for the
// current month.
func (s *InvoiceService) nextNumber(ctx context.Context, userID string) (string, error) {
	now := time.Now().UTC()
	count, err := s.repo.CountForUserInMonth(ctx, userID, now)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to number invoice")
	}
	return fmt.Sprintf("INV-%s-%04d", now.Format("200601"), count+1), nil
}

func computeTotals(items models.InvoiceItems) (subtotal, tax, total float64) {
	for _, item := range items {
		subtotal += item.Amount
		tax += item.Amount * item.TaxRate / 100
	}
	subtotal = round2(subtotal)
	tax = round2(tax)
	total = round2(subtotal + tax)
	return subtotal, tax, total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
