package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-attendance-api/pkg/cache"
	appErrors "github.com/noah-isme/campus-attendance-api/pkg/errors"
	"github.com/noah-isme/campus-attendance-api/pkg/response"
)

// RateLimit throttles requests per authenticated caller, or per client IP on
// public routes. A limiter backend failure lets the request through.
func RateLimit(limiter cache.Limiter, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if claims := Claims(c); claims != nil {
			key = "user:" + claims.UserID
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, "Too many attempts, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
