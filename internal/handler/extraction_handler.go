package handler

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/invoyq/invoyq-api/internal/service"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
	"github.com/invoyq/invoyq-api/pkg/response"
)

// maxExtractionUpload bounds uploaded document size at 5 MB.
const maxExtractionUpload = 5 << 20

// ExtractionHandler wires HTTP endpoints to the extraction service.
type ExtractionHandler struct {
	service *service.ExtractionService
	metrics *service.MetricsService
}

// NewExtractionHandler creates a new handler.
func NewExtractionHandler(svc *service.ExtractionService, metrics *service.MetricsService) *ExtractionHandler {
	return &ExtractionHandler{service: svc, metrics: metrics}
}

type extractTextRequest struct {
	Text string `json:"text" binding:"required"`
}

// ExtractText godoc
// @Summary Extract structured data from raw text
// @Tags Extraction
// @Accept json
// @Produce json
// @Param payload body extractTextRequest true "Document text"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /extract/text [post]
func (h *ExtractionHandler) ExtractText(c *gin.Context) {
	var req extractTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "text field is required"))
		return
	}

	extraction, err := h.service.ExtractText(c.Request.Context(), h.optionalUserID(c), req.Text)
	if err != nil {
		h.metrics.ObserveExtraction("failure")
		response.Error(c, err)
		return
	}
	h.metrics.ObserveExtraction("success")
	response.JSON(c, http.StatusOK, extraction, nil)
}

// ExtractDocument godoc
// @Summary Extract structured data from an uploaded document
// @Description Accepts plain-text and CSV uploads; binary formats must be converted client-side
// @Tags Extraction
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document file"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /extract/document [post]
func (h *ExtractionHandler) ExtractDocument(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file field is required"))
		return
	}
	if fileHeader.Size > maxExtractionUpload {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file too large"))
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	switch ext {
	case ".txt", ".csv", ".md", ".json":
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported document type"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(file, maxExtractionUpload))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}

	extraction, err := h.service.ExtractDocument(c.Request.Context(), h.optionalUserID(c), string(data))
	if err != nil {
		h.metrics.ObserveExtraction("failure")
		response.Error(c, err)
		return
	}
	h.metrics.ObserveExtraction("success")
	response.JSON(c, http.StatusOK, extraction, nil)
}

// History godoc
// @Summary Recent extractions
// @Tags Extraction
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max results"
// @Success 200 {object} response.Envelope
// @Router /extract/history [get]
func (h *ExtractionHandler) History(c *gin.Context) {
	user := userFromContext(c)
	if user == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, ""))
		return
	}

	extractions, err := h.service.History(c.Request.Context(), user.ID, queryInt(c, "limit", 20))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, extractions, nil)
}

func (h *ExtractionHandler) optionalUserID(c *gin.Context) *string {
	if user := userFromContext(c); user != nil {
		return &user.ID
	}
	return nil
}
