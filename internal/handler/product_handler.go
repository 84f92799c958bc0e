package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/invoyq/invoyq-api/internal/models"
	"github.com/invoyq/invoyq-api/internal/service"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
	"github.com/invoyq/invoyq-api/pkg/response"
)

// ProductHandler wires HTTP endpoints to the product service.
type ProductHandler struct {
	service *service.ProductService
}

// NewProductHandler creates a new handler.
func NewProductHandler(svc *service.ProductService) *ProductHandler {
	return &ProductHandler{service: svc}
}

// List godoc
// @Summary List products
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name or SKU search"
// @Param category query string false "Category filter"
// @Param active query bool false "Active filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /products [get]
func (h *ProductHandler) List(c *gin.Context) {
	user := userFromContext(c)
	filter := models.ProductFilter{
		Search:   c.Query("search"),
		Category: c.Query("category"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.Active = &active
		}
	}

	products, pagination, err := h.service.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, products, pagination)
}

// Get godoc
// @Summary Get a product
// @Tags Products
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [get]
func (h *ProductHandler) Get(c *gin.Context) {
	user := userFromContext(c)
	product, err := h.service.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, product, nil)
}

// Create godoc
// @Summary Create a product
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.Product true "Product payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /products [post]
func (h *ProductHandler) Create(c *gin.Context) {
	user := userFromContext(c)
	var product models.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid product payload"))
		return
	}

	created, err := h.service.Create(c.Request.Context(), user.ID, &product)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Update a product
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Product id"
// @Param payload body models.Product true "Product payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /products/{id} [put]
func (h *ProductHandler) Update(c *gin.Context) {
	user := userFromContext(c)
	var update models.Product
	if err := c.ShouldBindJSON(&update); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid product payload"))
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
// @Summary Delete a product
// @Tags Products
// @Security BearerAuth
// @Param id path string true "Product id"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /products/{id} [delete]
func (h *ProductHandler) Delete(c *gin.Context) {
	user := userFromContext(c)
	if err := h.service.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
