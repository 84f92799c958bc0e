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

// ClientRepository provides database access for a user's clients.
type ClientRepository struct {
	db *sqlx.DB
}

// NewClientRepository creates a new instance of ClientRepository.
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

const clientColumns = `id, user_id, name, email, phone, address, created_at, updated_at`

// List returns the user's clients matching the filter with a total count.
func (r *ClientRepository) List(ctx context.Context, userID string, filter models.ClientFilter) ([]models.Client, int, error) {
	baseQuery := `FROM clients WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Search != "" {
		baseQuery += fmt.Sprintf(" AND (LOWER(name) LIKE $%d OR LOWER(COALESCE(email, '')) LIKE $%d)", len(args)+1, len(args)+1)
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", clientColumns, baseQuery, pageSize, offset)

	var clients []models.Client
	if err := r.db.SelectContext(ctx, &clients, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	return clients, total, nil
}

// FindByID returns a client owned by the given user.
func (r *ClientRepository) FindByID(ctx context.Context, userID, id string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 AND user_id = $2 LIMIT 1`
	var client models.Client
	if err := r.db.GetContext(ctx, &client, query, id, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find client by id: %w", err)
	}
	return &client, nil
}

// Create inserts a new client.
func (r *ClientRepository) Create(ctx context.Context, client *models.Client) error {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now

	const query = `INSERT INTO clients (id, user_id, name, email, phone, address, created_at, updated_at)
		VALUES (:id, :user_id, :name, :email, :phone, :address, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, client); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

// Update updates mutable fields of a client scoped to its owner.
func (r *ClientRepository) Update(ctx context.Context, client *models.Client) error {
	client.UpdatedAt = time.Now().UTC()
	const query = `UPDATE clients SET name = :name, email = :email, phone = :phone, address = :address, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`
	if _, err := r.db.NamedExecContext(ctx, query, client); err != nil {
		return fmt.Errorf("update client: %w", err)
	}
	return nil
}

// Delete removes a client owned by the given user.
func (r *ClientRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	const query = `DELETE FROM clients WHERE id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete client: %w", err)
	}
	return affected > 0, nil
}

// Stats returns dashboard counters for the user's clients.
func (r *ClientRepository) Stats(ctx context.Context, userID string) (*models.ClientStats, error) {
	const query = `SELECT COUNT(*) AS total_count FROM clients WHERE user_id = $1`
	var stats models.ClientStats
	if err := r.db.GetContext(ctx, &stats, query, userID); err != nil {
		return nil, fmt.Errorf("client stats: %w", err)
	}
	return &stats, nil
}
