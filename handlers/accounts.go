package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prompt-request/go-services/internal/apierror"
)

// AccountCreator issues new API keys.
type AccountCreator interface {
	CreateAccount(ctx context.Context) (string, error)
}

// RegisterAccountRoutes mounts POST /accounts on r. Callers are expected to
// put an IP limiter in front of it.
func RegisterAccountRoutes(r gin.IRoutes, svc AccountCreator) {
	r.POST("/accounts", func(c *gin.Context) {
		key, err := svc.CreateAccount(context.WithoutCancel(c.Request.Context()))
		if err != nil {
			apierror.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"api_key": key})
	})
}
