package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type mockProductRepo struct {
	products map[string]*models.Product
}

func newMockProductRepo() *mockProductRepo {
	return &mockProductRepo{products: map[string]*models.Product{}}
}

func (m *mockProductRepo) List(ctx context.Context, userID string, filter models.ProductFilter) ([]models.Product, int, error) {
	var out []models.Product
	for _, p := range m.products {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, len(out), nil
}

func (m *mockProductRepo) FindByID(ctx context.Context, userID, id string) (*models.Product, error) {
	product, ok := m.products[id]
	if !ok || product.UserID != userID {
		return nil, sql.ErrNoRows
	}
	copied := *product
	return &copied, nil
}

func (m *mockProductRepo) ExistsBySKU(ctx context.Context, userID, sku, excludeID string) (bool, error) {
	for _, p := range m.products {
		if p.UserID == userID && p.SKU == sku && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockProductRepo) Create(ctx context.Context, product *models.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	stored := *product
	m.products[product.ID] = &stored
	return nil
}

func (m *mockProductRepo) Update(ctx context.Context, product *models.Product) error {
	stored := *product
	m.products[product.ID] = &stored
	return nil
}

func (m *mockProductRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	product, ok := m.products[id]
	if !ok || product.UserID != userID {
		return false, nil
	}
	delete(m.products, id)
	return true, nil
}

func TestCreateProductNormalizes(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil, nil)
	userID := uuid.NewString()

	product, err := svc.Create(context.Background(), userID, &models.Product{
		SKU: "  wid-1 ", Name: "  Widget  ", UnitPrice: 9.99, IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "WID-1", product.SKU)
	assert.Equal(t, "Widget", product.Name)
	assert.Equal(t, "USD", product.Currency)
	assert.Equal(t, userID, product.UserID)
}

func TestCreateProductValidation(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil, nil)
	userID := uuid.NewString()

	cases := []*models.Product{
		{Name: "No SKU", UnitPrice: 1},
		{SKU: "X", UnitPrice: 1},
		{SKU: "X", Name: "Neg", UnitPrice: -1},
		{SKU: "X", Name: "Tax", UnitPrice: 1, TaxRate: 101},
	}
	for _, product := range cases {
		_, err := svc.Create(context.Background(), userID, product)
		assert.ErrorIs(t, err, appErrors.ErrValidation)
	}
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, nil)
	userID := uuid.NewString()

	_, err := svc.Create(context.Background(), userID, &models.Product{SKU: "WID-1", Name: "Widget", UnitPrice: 1})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), userID, &models.Product{SKU: "wid-1", Name: "Other", UnitPrice: 2})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	// Same SKU under a different user is fine.
	_, err = svc.Create(context.Background(), uuid.NewString(), &models.Product{SKU: "WID-1", Name: "Theirs", UnitPrice: 3})
	assert.NoError(t, err)
}

func TestUpdateProductKeepsOwnSKU(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, nil)
	userID := uuid.NewString()

	created, err := svc.Create(context.Background(), userID, &models.Product{SKU: "WID-1", Name: "Widget", UnitPrice: 1, IsActive: true})
	require.NoError(t, err)

	// Updating without changing the SKU must not trip the uniqueness check.
	updated, err := svc.Update(context.Background(), userID, created.ID, &models.Product{Name: "Widget v2", UnitPrice: 2, IsActive: true})
	require.NoError(t, err)
	assert.Equal(t, "WID-1", updated.SKU)
	assert.Equal(t, "Widget v2", updated.Name)
	assert.InDelta(t, 2.0, updated.UnitPrice, 0.001)
}

func TestUpdateProductRejectsTakenSKU(t *testing.T) {
	repo := newMockProductRepo()
	svc := NewProductService(repo, nil, nil)
	userID := uuid.NewString()

	_, err := svc.Create(context.Background(), userID, &models.Product{SKU: "WID-1", Name: "First", UnitPrice: 1})
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), userID, &models.Product{SKU: "WID-2", Name: "Second", UnitPrice: 1})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), userID, second.ID, &models.Product{SKU: "WID-1"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestDeleteProductNotFound(t *testing.T) {
	svc := NewProductService(newMockProductRepo(), nil, nil)

	err := svc.Delete(context.Background(), uuid.NewString(), uuid.NewString())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
