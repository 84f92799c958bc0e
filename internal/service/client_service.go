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

type clientRepository interface {
	List(ctx context.Context, userID string, filter models.ClientFilter) ([]models.Client, int, error)
	FindByID(ctx context.Context, userID, id string) (*models.Client, error)
	Create(ctx context.Context, client *models.Client) error
	Update(ctx context.Context, client *models.Client) error
	Delete(ctx context.Context, userID, id string) (bool, error)
	Stats(ctx context.Context, userID string) (*models.ClientStats, error)
}

// ClientService manages a user's client directory.
type ClientService struct {
	repo      clientRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClientService constructs a ClientService instance.
func NewClientService(repo clientRepository, validate *validator.Validate, logger *zap.Logger) *ClientService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ClientService{repo: repo, validator: validate, logger: logger}
}

// List returns clients for the user with pagination metadata.
func (s *ClientService) List(ctx context.Context, userID string, filter models.ClientFilter) ([]models.Client, *models.Pagination, error) {
	clients, total, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clients")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return clients, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one client owned by the user.
func (s *ClientService) Get(ctx context.Context, userID, id string) (*models.Client, error) {
	client, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "client not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch client")
	}
	return client, nil
}

// Create stores a new client.
func (s *ClientService) Create(ctx context.Context, userID string, client *models.Client) (*models.Client, error) {
	client.Name = strings.TrimSpace(client.Name)
	if client.Name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "client name is required")
	}
	if client.Email != nil && *client.Email != "" {
		if err := s.validator.Var(*client.Email, "email"); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid client email")
		}
	}
	client.UserID = userID
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create client")
	}
	return client, nil
}

// Update applies changes to an existing client.
func (s *ClientService) Update(ctx context.Context, userID, id string, update *models.Client) (*models.Client, error) {
	existing, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if name := strings.TrimSpace(update.Name); name != "" {
		existing.Name = name
	}
	if update.Email != nil {
		existing.Email = update.Email
	}
	if update.Phone != nil {
		existing.Phone = update.Phone
	}
	if update.Address != nil {
		existing.Address = update.Address
	}

	if existing.Email != nil && *existing.Email != "" {
		if err := s.validator.Var(*existing.Email, "email"); err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid client email")
		}
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update client")
	}
	return existing, nil
}

// Delete removes a client owned by the user.
func (s *ClientService) Delete(ctx context.Context, userID, id string) error {
	deleted, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete client")
	}
	if !deleted {
		return appErrors.Clone(appErrors.ErrNotFound, "client not found")
	}
	return nil
}

// Stats returns dashboard counters for the user's clients.
func (s *ClientService) Stats(ctx context.Context, userID string) (*models.ClientStats, error) {
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute client stats")
	}
	return stats, nil
}
