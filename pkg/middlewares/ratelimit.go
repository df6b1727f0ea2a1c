package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
)

// RateLimit rejects requests with 429 once the limiter runs out of tokens.
func RateLimit(limiter *pkg.DistributedLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter.Allow(c.Request.Context()) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(pkg.ErrRateLimitedCode.Status, pkg.ErrorResponse{
			Code:    pkg.ErrRateLimitedCode.Code,
			Message: pkg.ErrRateLimitedCode.Message,
		})
	}
}
