// Command devserver runs the full HTTP surface on in-memory stores. Nothing
// survives a restart; use it for local clients and demos.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prompt-request/go-services/handlers"
	"github.com/prompt-request/go-services/internal/accounts"
	"github.com/prompt-request/go-services/internal/document/repository"
	"github.com/prompt-request/go-services/internal/document/service"
	"github.com/prompt-request/go-services/internal/storage"
	"github.com/prompt-request/go-services/pkg/logger"
	"github.com/prompt-request/go-services/pkg/metrics"
	"github.com/prompt-request/go-services/pkg/ratelimit"
)

func main() {
	addr := flag.String("addr", ":5010", "listen address")
	frontPage := flag.String("front-page", os.Getenv("FRONT_PAGE_PATH"), "markdown file served on /")
	noLimits := flag.Bool("no-limits", false, "disable rate limiting")
	flag.Parse()

	logger.Init(os.Getenv("LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	page, err := handlers.LoadFrontPage(*frontPage)
	if err != nil {
		logger.Fatalf("failed to load front page: %v", err)
	}

	limiter := func(name string, window time.Duration) ratelimit.Limiter {
		if *noLimits {
			return unlimited{}
		}
		l := ratelimit.NewFixedWindow(window)
		l.StartJanitor(ctx, time.Minute)
		return ratelimit.Instrument(name, l)
	}
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	store := repository.NewMemoryStore()
	blobs := storage.NewMemoryStorage()
	router, err := handlers.NewRouter(handlers.Deps{
		Accounts:  accounts.NewService(accounts.NewMemoryRepository(), "dev", limiter("account", time.Second)),
		Documents: service.NewCoordinator(store, blobs),
		Reader:    service.NewReader(store, blobs),
		Limiters:  handlers.Limiters{PublicRead: limiter("public_read", time.Second), AccountCreate: limiter("account_create", time.Hour)},
		FrontPage: page,
		AccessLog: true,
	})
	if err != nil {
		logger.Fatalf("failed to build router: %v", err)
	}

	logger.Warnf("devserver keeps everything in memory")
	go func() {
		<-ctx.Done()
		logger.Infof("shutting down")
		os.Exit(0)
	}()
	logger.Infof("devserver listening on %s", *addr)
	if err := router.Run(*addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}

type unlimited struct{}

func (unlimited) Check(context.Context, string) error { return nil }
