package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/invoyq/invoyq-api/internal/middleware"
	"github.com/invoyq/invoyq-api/internal/models"
)

func userFromContext(c *gin.Context) *models.User {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return nil
	}
	return user
}
