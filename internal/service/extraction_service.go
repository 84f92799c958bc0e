package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
)

type extractionRepository interface {
	Create(ctx context.Context, extraction *models.Extraction) error
	ListForUser(ctx context.Context, userID string, limit int) ([]models.Extraction, error)
}

// contentGenerator is the slice of the Gemini client the extractor needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// GeminiClient wraps the genai SDK behind the contentGenerator interface.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient connects to the Gemini API with the given key and model.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GeminiClient{client: client, model: model}, nil
}

// GenerateContent sends a single text prompt and returns the concatenated
// text parts of the first candidate.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no content generated")
	}
	text := ""
	for _, part := range result.Candidates[0].Content.Parts {
		text += part.Text
	}
	return text, nil
}

const extractionPrompt = `You are a bookkeeping assistant. Extract structured data from the document text below.
Respond with ONLY a JSON object, no prose and no code fences, with this shape:
{
  "document_type": "invoice" | "receipt" | "expense" | "unknown",
  "vendor": string or null,
  "date": "YYYY-MM-DD" or null,
  "currency": ISO 4217 code or null,
  "subtotal": number or null,
  "tax": number or null,
  "total": number or null,
  "line_items": [{"description": string, "quantity": number, "unit_price": number, "amount": number}],
  "confidence": integer 0-100
}

Document text:
%s`

// ExtractionService turns raw document text into structured invoice or
// expense data via Gemini and persists the result.
type ExtractionService struct {
	repo      extractionRepository
	generator contentGenerator
	logger    *zap.Logger
}

// NewExtractionService constructs an ExtractionService instance. A nil
// generator disables the feature; calls then fail cleanly.
func NewExtractionService(repo extractionRepository, generator contentGenerator, logger *zap.Logger) *ExtractionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExtractionService{repo: repo, generator: generator, logger: logger}
}

// Enabled reports whether an extraction backend is configured.
func (s *ExtractionService) Enabled() bool {
	return s.generator != nil
}

// ExtractText runs the extraction prompt over raw text and persists the
// parsed result. userID is nil for anonymous callers.
func (s *ExtractionService) ExtractText(ctx context.Context, userID *string, text string) (*models.Extraction, error) {
	return s.extract(ctx, userID, models.ExtractionSourceText, text)
}

// ExtractDocument runs extraction over text pulled out of an uploaded file.
func (s *ExtractionService) ExtractDocument(ctx context.Context, userID *string, text string) (*models.Extraction, error) {
	return s.extract(ctx, userID, models.ExtractionSourceFile, text)
}

// History returns the user's recent extractions.
func (s *ExtractionService) History(ctx context.Context, userID string, limit int) ([]models.Extraction, error) {
	extractions, err := s.repo.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list extractions")
	}
	return extractions, nil
}

func (s *ExtractionService) extract(ctx context.Context, userID *string, sourceType, text string) (*models.Extraction, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document extraction is not configured")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document text is required")
	}
	if len(text) > 50_000 {
		text = text[:50_000]
	}

	raw, err := s.generator.GenerateContent(ctx, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "extraction failed")
	}

	parsed, err := parseExtractionJSON(raw)
	if err != nil {
		s.logger.Warn("model returned unparseable extraction", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "extraction returned malformed data")
	}

	confidence := 0
	if v, ok := parsed["confidence"].(float64); ok {
		confidence = int(v)
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 100 {
			confidence = 100
		}
	}

	extraction := &models.Extraction{
		UserID:     userID,
		SourceType: sourceType,
		RawText:    text,
		Parsed:     parsed,
		Confidence: confidence,
	}
	if err := s.repo.Create(ctx, extraction); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store extraction")
	}
	return extraction, nil
}

// parseExtractionJSON tolerates code fences and leading prose around the JSON
// object the model was asked for.
func parseExtractionJSON(raw string) (models.JSONMap, error) {
	raw = strings.TrimSpace(raw)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	var parsed models.JSONMap
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse extraction json: %w", err)
	}
	return parsed, nil
}
