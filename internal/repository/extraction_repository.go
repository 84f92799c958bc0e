package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/invoyq/invoyq-api/internal/models"
)

// ExtractionRepository persists AI document-extraction results.
type ExtractionRepository struct {
	db *sqlx.DB
}

// NewExtractionRepository creates a new instance of ExtractionRepository.
func NewExtractionRepository(db *sqlx.DB) *ExtractionRepository {
	return &ExtractionRepository{db: db}
}

// Create inserts a new extraction record.
func (r *ExtractionRepository) Create(ctx context.Context, extraction *models.Extraction) error {
	if extraction.ID == "" {
		extraction.ID = uuid.NewString()
	}
	if extraction.CreatedAt.IsZero() {
		extraction.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO extractions (id, user_id, source_type, raw_text, parsed, confidence, created_at)
		VALUES (:id, :user_id, :source_type, :raw_text, :parsed, :confidence, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, extraction); err != nil {
		return fmt.Errorf("create extraction: %w", err)
	}
	return nil
}

// ListForUser returns the most recent extractions belonging to a user.
func (r *ExtractionRepository) ListForUser(ctx context.Context, userID string, limit int) ([]models.Extraction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT id, user_id, source_type, raw_text, parsed, confidence, created_at
		FROM extractions WHERE user_id = $1 ORDER BY created_at DESC LIMIT %d`, limit)
	var extractions []models.Extraction
	if err := r.db.SelectContext(ctx, &extractions, query, userID); err != nil {
		return nil, fmt.Errorf("list extractions: %w", err)
	}
	return extractions, nil
}
