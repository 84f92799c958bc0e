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

type mockClientRepo struct {
	clients map[string]*models.Client
}

func newMockClientRepo() *mockClientRepo {
	return &mockClientRepo{clients: map[string]*models.Client{}}
}

func (m *mockClientRepo) List(ctx context.Context, userID string, filter models.ClientFilter) ([]models.Client, int, error) {
	var out []models.Client
	for _, c := range m.clients {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (m *mockClientRepo) FindByID(ctx context.Context, userID, id string) (*models.Client, error) {
	client, ok := m.clients[id]
	if !ok || client.UserID != userID {
		return nil, sql.ErrNoRows
	}
	copied := *client
	return &copied, nil
}

func (m *mockClientRepo) Create(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	stored := *client
	m.clients[client.ID] = &stored
	return nil
}

func (m *mockClientRepo) Update(ctx context.Context, client *models.Client) error {
	stored := *client
	m.clients[client.ID] = &stored
	return nil
}

func (m *mockClientRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	client, ok := m.clients[id]
	if !ok || client.UserID != userID {
		return false, nil
	}
	delete(m.clients, id)
	return true, nil
}

func (m *mockClientRepo) Stats(ctx context.Context, userID string) (*models.ClientStats, error) {
	count := 0
	for _, c := range m.clients {
		if c.UserID == userID {
			count++
		}
	}
	return &models.ClientStats{TotalCount: count}, nil
}

func TestCreateClientRequiresName(t *testing.T) {
	svc := NewClientService(newMockClientRepo(), nil, nil)

	_, err := svc.Create(context.Background(), uuid.NewString(), &models.Client{Name: "   "})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCreateClientValidatesEmail(t *testing.T) {
	svc := NewClientService(newMockClientRepo(), nil, nil)
	userID := uuid.NewString()

	bad := "not-an-email"
	_, err := svc.Create(context.Background(), userID, &models.Client{Name: "Acme", Email: &bad})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	good := "billing@acme.example"
	client, err := svc.Create(context.Background(), userID, &models.Client{Name: " Acme ", Email: &good})
	require.NoError(t, err)
	assert.Equal(t, "Acme", client.Name)
	assert.Equal(t, userID, client.UserID)
}

func TestGetClientScopedToOwner(t *testing.T) {
	repo := newMockClientRepo()
	svc := NewClientService(repo, nil, nil)
	userID := uuid.NewString()

	created, err := svc.Create(context.Background(), userID, &models.Client{Name: "Acme"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), uuid.NewString(), created.ID)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	found, err := svc.Get(context.Background(), userID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", found.Name)
}

func TestUpdateClientMergesFields(t *testing.T) {
	repo := newMockClientRepo()
	svc := NewClientService(repo, nil, nil)
	userID := uuid.NewString()

	email := "old@acme.example"
	created, err := svc.Create(context.Background(), userID, &models.Client{Name: "Acme", Email: &email})
	require.NoError(t, err)

	phone := "+1 555 0100"
	updated, err := svc.Update(context.Background(), userID, created.ID, &models.Client{Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Acme", updated.Name)
	assert.Equal(t, "old@acme.example", *updated.Email)
	assert.Equal(t, phone, *updated.Phone)
}

func TestDeleteClientNotFound(t *testing.T) {
	svc := NewClientService(newMockClientRepo(), nil, nil)

	err := svc.Delete(context.Background(), uuid.NewString(), uuid.NewString())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestClientStats(t *testing.T) {
	repo := newMockClientRepo()
	svc := NewClientService(repo, nil, nil)
	userID := uuid.NewString()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), userID, &models.Client{Name: "Acme"})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCount)
}
