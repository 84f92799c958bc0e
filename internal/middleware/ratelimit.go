package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/invoyq/invoyq-api/pkg/errors"
	"github.com/invoyq/invoyq-api/pkg/response"
)

// RateLimit enforces a fixed-window per-client cap in Redis. The key is the
// client IP; windows are one minute. When Redis is down the limiter fails
// open so an infra outage does not lock everyone out.
func RateLimit(client *redis.Client, scope string, perMinute int, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if client == nil || perMinute <= 0 {
			c.Next()
			return
		}

		window := time.Now().UTC().Unix() / 60
		key := fmt.Sprintf("ratelimit:%s:%s:%d", scope, c.ClientIP(), window)

		count, err := client.Incr(c.Request.Context(), key).Result()
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}
		if count == 1 {
			client.Expire(c.Request.Context(), key, time.Minute)
		}

		if count > int64(perMinute) {
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, ""))
			c.Abort()
			return
		}
		c.Next()
	}
}
