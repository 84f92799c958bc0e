package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/invoyq/invoyq-api/internal/models"
	"github.com/invoyq/invoyq-api/internal/service"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
	"github.com/invoyq/invoyq-api/pkg/response"
)

// InvoiceHandler wires HTTP endpoints to the invoice service.
type InvoiceHandler struct {
	service *service.InvoiceService
}

// NewInvoiceHandler creates a new handler.
func NewInvoiceHandler(svc *service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{service: svc}
}

// List godoc
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param client_id query string false "Client filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /invoices [get]
func (h *InvoiceHandler) List(c *gin.Context) {
	user := userFromContext(c)
	filter := models.InvoiceFilter{
		Status:   c.Query("status"),
		ClientID: c.Query("client_id"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	invoices, pagination, err := h.service.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoices, pagination)
}

// Get godoc
// @Summary Get an invoice
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /invoices/{id} [get]
func (h *InvoiceHandler) Get(c *gin.Context) {
	user := userFromContext(c)
	invoice, err := h.service.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Create godoc
// @Summary Create a draft invoice
// @Tags Invoices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.InvoiceCreateRequest true "Invoice payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /invoices [post]
func (h *InvoiceHandler) Create(c *gin.Context) {
	user := userFromContext(c)
	var req models.InvoiceCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invoice payload"))
		return
	}

	invoice, err := h.service.Create(c.Request.Context(), user.ID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, invoice)
}

// Update godoc
// @Summary Edit a draft invoice
// @Tags Invoices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice id"
// @Param payload body models.InvoiceUpdateRequest true "Invoice payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /invoices/{id} [put]
func (h *InvoiceHandler) Update(c *gin.Context) {
	user := userFromContext(c)
	var req models.InvoiceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invoice payload"))
		return
	}

	invoice, err := h.service.Update(c.Request.Context(), user.ID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Delete godoc
// @Summary Delete a draft invoice
// @Tags Invoices
// @Security BearerAuth
// @Param id path string true "Invoice id"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /invoices/{id} [delete]
func (h *InvoiceHandler) Delete(c *gin.Context) {
	user := userFromContext(c)
	if err := h.service.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateStatus godoc
// @Summary Move an invoice through its lifecycle
// @Tags Invoices
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice id"
// @Param payload body models.InvoiceStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /invoices/{id}/status [post]
func (h *InvoiceHandler) UpdateStatus(c *gin.Context) {
	user := userFromContext(c)
	var req models.InvoiceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}

	invoice, err := h.service.UpdateStatus(c.Request.Context(), user.ID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// Summary godoc
// @Summary Invoice dashboard aggregate
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /invoices/summary [get]
func (h *InvoiceHandler) Summary(c *gin.Context) {
	user := userFromContext(c)
	summary, err := h.service.Summary(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// GeneratePDF godoc
// @Summary Generate the invoice PDF
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /invoices/{id}/pdf [post]
func (h *InvoiceHandler) GeneratePDF(c *gin.Context) {
	user := userFromContext(c)
	invoice, err := h.service.GeneratePDF(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}

// SendReminder godoc
// @Summary Email a payment reminder
// @Tags Invoices
// @Produce json
// @Security BearerAuth
// @Param id path string true "Invoice id"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /invoices/{id}/reminder [post]
func (h *InvoiceHandler) SendReminder(c *gin.Context) {
	user := userFromContext(c)
	invoice, err := h.service.SendReminder(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, invoice, nil)
}
