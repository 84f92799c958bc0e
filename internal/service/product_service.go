package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type productRepository interface {
	List(ctx context.Context, userID string, filter models.ProductFilter) ([]models.Product, int, error)
	FindByID(ctx context.Context, userID, id string) (*models.Product, error)
	ExistsBySKU(ctx context.Context, userID, sku, excludeID string) (bool, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, userID, id string) (bool, error)
}

// ProductService manages the per-user product catalog. SKUs are unique within
// one user's catalog, not globally.
type ProductService struct {
	repo      productRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewProductService constructs a ProductService instance.
func NewProductService(repo productRepository, validate *validator.Validate, logger *zap.Logger) *ProductService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ProductService{repo: repo, validator: validate, logger: logger}
}

// List returns catalog entries for the user with pagination metadata.
func (s *ProductService) List(ctx context.Context, userID string, filter models.ProductFilter) ([]models.Product, *models.Pagination, error) {
	products, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list products")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return products, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one product owned by the user.
func (s *ProductService) Get(ctx context.Context, userID, id string) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "product not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch product")
	}
	return product, nil
}

// Create stores a new catalog entry after normalising SKU and currency.
func (s *ProductService) Create(ctx context.Context, userID string, product *models.Product) (*models.Product, error) {
	if err := normalizeProduct(product); err != nil {
		return nil, err
	}

	taken, err := s.repo.ExistsBySKU(ctx, userID, product.SKU, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check sku")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "sku already in use")
	}

	product.UserID = userID
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create product")
	}
	return product, nil
}

// Update applies changes to an existing product, re-checking SKU uniqueness
// when the SKU changes.
func (s *ProductService) Update(ctx context.Context, userID, id string, update *models.Product) (*models.Product, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if sku := strings.TrimSpace(update.SKU); sku != "" {
		existing.SKU = strings.ToUpper(sku)
	}
	if name := strings.TrimSpace(update.Name); name != "" {
		existing.Name = name
	}
	if update.Description != nil {
		existing.Description = update.Description
	}
	if update.Category != nil {
		existing.Category = update.Category
	}
	if update.UnitPrice > 0 {
		existing.UnitPrice = update.UnitPrice
	}
	if update.TaxRate >= 0 {
		existing.TaxRate = update.TaxRate
	}
	if update.Currency != "" {
		existing.Currency = strings.ToUpper(strings.TrimSpace(update.Currency))
	}
	if update.QuantityAvailable >= 0 {
		existing.QuantityAvailable = update.QuantityAvailable
	}
	existing.IsActive = update.IsActive

	taken, err := s.repo.ExistsBySKU(ctx, userID, existing.SKU, existing.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check sku")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrConflict, "sku already in use")
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update product")
	}
	return existing, nil
}

// Delete removes a product owned by the user.
func (s *ProductService) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete product")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "product not found")
	}
	return nil
}

func normalizeProduct(product *models.Product) error {
	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	product.Name = strings.TrimSpace(product.Name)
	product.Currency = strings.ToUpper(strings.TrimSpace(product.Currency))

	if product.SKU == "" {
		return appErrors.Clone(appErrors.ErrValidation, "sku is required")
	}
	if product.Name == "" {
		return appErrors.Clone(appErrors.ErrValidation, "product name is required")
	}
	if product.UnitPrice < 0 {
		return appErrors.Clone(appErrors.ErrValidation, "unit price must not be negative")
	}
	if product.TaxRate < 0 || product.TaxRate > 100 {
		return appErrors.Clone(appErrors.ErrValidation, "tax rate must be between 0 and 100")
	}
	if product.Currency == "" {
		product.Currency = "USD"
	}
	return nil
}
