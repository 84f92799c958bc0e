package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/invoyq/invoyq-api/internal/models"
	"github.com/invoyq/invoyq-api/internal/service"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
	"github.com/invoyq/invoyq-api/pkg/response"
)

// ExpenseHandler wires HTTP endpoints to the expense service.
type ExpenseHandler struct {
	service *service.ExpenseService
}

// NewExpenseHandler creates a new handler.
func NewExpenseHandler(svc *service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{service: svc}
}

// List godoc
// @Summary List expenses
// @Tags Expenses
// @Produce json
// @Security BearerAuth
// @Param category query string false "Category filter"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /expenses [get]
func (h *ExpenseHandler) List(c *gin.Context) {
	user := userFromContext(c)
	filter := models.ExpenseFilter{
		Category: c.Query("category"),
		From:     queryDate(c, "from"),
		To:       queryDate(c, "to"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	expenses, pagination, err := h.service.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expenses, pagination)
}

// Get godoc
// @Summary Get an expense
// @Tags Expenses
// @Produce json
// @Security BearerAuth
// @Param id path string true "Expense id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id} [get]
func (h *ExpenseHandler) Get(c *gin.Context) {
	user := userFromContext(c)
	expense, err := h.service.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, expense, nil)
}

// Create godoc
// @Summary Create an expense
// @Tags Expenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.Expense true "Expense payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /expenses [post]
func (h *ExpenseHandler) Create(c *gin.Context) {
	user := userFromContext(c)
	var expense models.Expense
	if err := c.ShouldBindJSON(&expense); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expense payload"))
		return
	}

	created, err := h.service.Create(c.Request.Context(), user.ID, &expense)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Update an expense
// @Tags Expenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Expense id"
// @Param payload body models.Expense true "Expense payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id} [put]
func (h *ExpenseHandler) Update(c *gin.Context) {
	user := userFromContext(c)
	var update models.Expense
	if err := c.ShouldBindJSON(&update); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid expense payload"))
		return
	}

	updated, err := h.service.Update(c.Request.Context(), user.ID, c.Param("id"), &update)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

// Delete godoc
// @Summary Delete an expense
// @Tags Expenses
// @Security BearerAuth
// @Param id path string true "Expense id"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /expenses/{id} [delete]
func (h *ExpenseHandler) Delete(c *gin.Context) {
	user := userFromContext(c)
	if err := h.service.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Summary godoc
// @Summary Expense dashboard aggregate
// @Tags Expenses
// @Produce json
// @Security BearerAuth
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /expenses/summary [get]
func (h *ExpenseHandler) Summary(c *gin.Context) {
	user := userFromContext(c)
	summary, err := h.service.Summary(c.Request.Context(), user.ID, queryDate(c, "from"), queryDate(c, "to"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func queryDate(c *gin.Context, key string) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil
	}
	return &ts
}
