package models

import "time"

// Extraction source types.
const (
	ExtractionSourceText = "text"
	ExtractionSourceFile = "file"
)

// Extraction is a persisted AI document-extraction result. UserID is nil for
// anonymous extractions.
type Extraction struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"-"`
	SourceType string    `db:"source_type" json:"source_type"`
	RawText    string    `db:"raw_text" json:"-"`
	Parsed     JSONMap   `db:"parsed" json:"parsed"`
	Confidence int       `db:"confidence" json:"confidence"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
