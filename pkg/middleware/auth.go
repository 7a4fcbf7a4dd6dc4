package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prompt-request/go-services/internal/apierror"
)

const accountIDKey = "account_id"

// Authenticator resolves a raw API key to an account id.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (int64, error)
}

// AuthMiddleware returns a Gin middleware that authenticates "Authorization: Bearer <key>"
// and stores the account id in the context.
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		key, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(key) == "" {
			apierror.Respond(c, apierror.Unauthorized())
			return
		}

		id, err := auth.Authenticate(c.Request.Context(), key)
		if err != nil {
			apierror.Respond(c, err)
			return
		}

		c.Set(accountIDKey, id)
		c.Next()
	}
}

// AccountID returns the authenticated account id set by AuthMiddleware.
func AccountID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(accountIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
