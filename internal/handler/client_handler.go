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

// ClientHandler wires HTTP endpoints to the client service.
type ClientHandler struct {
	service *service.ClientService
}

// NewClientHandler creates a new handler.
func NewClientHandler(svc *service.ClientService) *ClientHandler {
	return &ClientHandler{service: svc}
}

// List godoc
// @Summary List clients
// @Tags Clients
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name or email search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /clients [get]
func (h *ClientHandler) List(c *gin.Context) {
	user := userFromContext(c)
	filter := models.ClientFilter{
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	clients, pagination, err := h.service.List(c.Request.Context(), user.ID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, clients, pagination)
}

// Get godoc
// @Summary Get a client
// @Tags Clients
// @Produce json
// @Security BearerAuth
// @Param id path string true "Client id"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clients/{id} [get]
func (h *ClientHandler) Get(c *gin.Context) {
	user := userFromContext(c)
	client, err := h.service.Get(c.Request.Context(), user.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, client, nil)
}

// Create godoc
// @Summary Create a client
// @Tags Clients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.Client true "Client payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /clients [post]
func (h *ClientHandler) Create(c *gin.Context) {
	user := userFromContext(c)
	var client models.Client
	if err := c.ShouldBindJSON(&client); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid client payload"))
		return
	}

	created, err := h.service.Create(c.Request.Context(), user.ID, &client)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update godoc
// @Summary Update a client
// @Tags Clients
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Client id"
// @Param payload body models.Client true "Client payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clients/{id} [put]
func (h *ClientHandler) Update(c *gin.Context) {
	user := userFromContext(c)
	var update models.Client
	if err := c.ShouldBindJSON(&update); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid client payload"))
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
// @Summary Delete a client
// @Tags Clients
// @Security BearerAuth
// @Param id path string true "Client id"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /clients/{id} [delete]
func (h *ClientHandler) Delete(c *gin.Context) {
	user := userFromContext(c)
	if err := h.service.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Stats godoc
// @Summary Client dashboard counters
// @Tags Clients
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /clients/stats [get]
func (h *ClientHandler) Stats(c *gin.Context) {
	user := userFromContext(c)
	stats, err := h.service.Stats(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
