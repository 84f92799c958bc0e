package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/invoyq/invoyq-api/internal/models"
	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
	"github.com/invoyq/invoyq-api/pkg/response"
)

// ContextUserKey is the gin context key storing the authenticated account.
const ContextUserKey = "currentUser"

type tokenVerifier interface {
	Verify(token string) (string, error)
}

type userLoader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Auth protects routes by requiring a valid access token whose subject still
// resolves to an active account. Tokens for deactivated or deleted accounts
// are rejected even before their expiry.
func Auth(verifier tokenVerifier, users userLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := resolveUser(c, verifier, users)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// OptionalAuth attaches the account when a valid token is present but does
// not block anonymous requests.
func OptionalAuth(verifier tokenVerifier, users userLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		if user, err := resolveUser(c, verifier, users); err == nil {
			c.Set(ContextUserKey, user)
		}
		c.Next()
	}
}

// CurrentUser pulls the authenticated account out of the gin context.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	value, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*models.User)
	return user, ok
}

func resolveUser(c *gin.Context, verifier tokenVerifier, users userLoader) (*models.User, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}

	subject, err := verifier.Verify(parts[1])
	if err != nil {
		return nil, err
	}

	user, err := users.FindByID(c.Request.Context(), subject)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	if !user.IsActive {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "")
	}
	return user, nil
}
