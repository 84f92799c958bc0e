package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/invoyq/invoyq-api/internal/models"
)

// ProductRepository provides database access for the product catalog.
type ProductRepository struct {
	db *sqlx.DB
}

// NewProductRepository creates a new instance of ProductRepository.
func NewProductRepository(db *sqlx.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `id, user_id, sku, name, description, category, unit_price, tax_rate, currency, quantity_available, is_active, created_at, updated_at`

// List returns the user's products matching the filter with a total count.
func (r *ProductRepository) List(ctx context.Context, userID string, filter models.ProductFilter) ([]models.Product, int, error) {
	baseQuery := `FROM products WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Search != "" {
		baseQuery += fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR LOWER(sku) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if filter.Category != "" {
		baseQuery += fmt.Sprintf(" AND category = $%d", len(args)+1)
		args = append(args, filter.Category)
	}
	if filter.Active != nil {
		baseQuery += fmt.Sprintf(" AND is_active = $%d", len(args)+1)
		args = append(args, *filter.Active)
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", productColumns, baseQuery, pageSize, offset)

	var products []models.Product
	if err := r.db.SelectContext(ctx, &products, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	return products, total, nil
}

// FindByID returns a product owned by the given user.
func (r *ProductRepository) FindByID(ctx context.Context, userID, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1 AND user_id = $2 LIMIT 1`
	var product models.Product
	if err := r.db.GetContext(ctx, &product, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find product by id: %w", err)
	}
	return &product, nil
}

// ExistsBySKU reports whether the user already has a product with this SKU.
func (r *ProductRepository) ExistsBySKU(ctx context.Context, userID, sku, excludeID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM products WHERE user_id = $1 AND sku = $2 AND id <> $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, sku, excludeID); err != nil {
		return false, fmt.Errorf("check sku exists: %w", err)
	}
	return exists, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	const query = `INSERT INTO products (id, user_id, sku, name, description, category, unit_price, tax_rate, currency, quantity_available, is_active, created_at, updated_at)
		VALUES (:id, :user_id, :sku, :name, :description, :category, :unit_price, :tax_rate, :currency, :quantity_available, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

// Update updates mutable fields of a product scoped to its owner.
func (r *ProductRepository) Update(ctx context.Context, product *models.Product) error {
	product.UpdatedAt = time.Now().UTC()
	const query = `UPDATE products SET sku = :sku, name = :name, description = :description, category = :category,
		unit_price = :unit_price, tax_rate = :tax_rate, currency = :currency, quantity_available = :quantity_available,
		is_active = :is_active, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, product); err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// Delete removes a product owned by the given user.
func (r *ProductRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	const query = `DELETE FROM products WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete product: %w", err)
	}
	return affected > 0, nil
}

// DecrementStock reduces available quantity, failing when stock would go
// negative. The conditional update keeps concurrent invoice creation honest.
func (r *ProductRepository) DecrementStock(ctx context.Context, userID, id string, quantity int) (bool, error) {
	const query = `UPDATE products SET quantity_available = quantity_available - $3, updated_at = $4
		WHERE id = $1 AND user_id = $2 AND quantity_available >= $3`
	res, err := r.db.ExecContext(ctx, query, id, userID, quantity, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("decrement product stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement product stock: %w", err)
	}
	return affected > 0, nil
}
