package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prompt-request/go-services/internal/document/handler"
	"github.com/prompt-request/go-services/internal/document/service"
	"github.com/prompt-request/go-services/pkg/middleware"
	"github.com/prompt-request/go-services/pkg/ratelimit"
)

// Limiters groups the IP-keyed limiters applied at the HTTP edge. The
// per-account limiter lives inside the authenticator.
type Limiters struct {
	PublicRead    ratelimit.Limiter
	AccountCreate ratelimit.Limiter
}

// Deps is everything the router needs.
type Deps struct {
	Accounts interface {
		AccountCreator
		middleware.Authenticator
	}
	Documents service.Service
	Reader    handler.ContentReader
	Limiters  Limiters
	FrontPage string
	Checks    map[string]Check

	// TrustedProxies limits which peers may set X-Forwarded-For. Empty
	// trusts every peer.
	TrustedProxies []string
	// AccessLog enables gin's request logger.
	AccessLog bool
}

// NewRouter builds the full HTTP surface.
func NewRouter(d Deps) (*gin.Engine, error) {
	r := gin.New()
	if d.AccessLog {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	if len(d.TrustedProxies) > 0 {
		if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
			return nil, fmt.Errorf("trusted proxies: %w", err)
		}
	}

	RegisterHealth(r, d.Checks)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	RegisterSwagger(r)

	api := r.Group("/api")
	RegisterAccountRoutes(api.Group("", middleware.RateLimitByIP(d.Limiters.AccountCreate)), d.Accounts)
	handler.RegisterDocumentRoutes(api.Group("", middleware.AuthMiddleware(d.Accounts)), d.Documents)

	public := r.Group("", middleware.RateLimitByIP(d.Limiters.PublicRead))
	RegisterFrontPage(public, d.FrontPage)
	handler.RegisterPublicRoutes(public, d.Reader)

	return r, nil
}
