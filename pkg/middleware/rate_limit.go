package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/pkg/ratelimit"
)

// ClientIP returns the caller address used as a rate-limit key: the first
// X-Forwarded-For entry when the peer is a trusted proxy, else the peer.
func ClientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return ip
}

// RateLimitByIP returns a Gin middleware that admits at most one request per
// client IP per window of the given limiter. Rejections carry Retry-After.
func RateLimitByIP(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := limiter.Check(c.Request.Context(), ClientIP(c)); err != nil {
			apierror.Respond(c, err)
			return
		}
		c.Next()
	}
}
