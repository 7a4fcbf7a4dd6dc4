package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prompt-request/go-services/handlers"
	"github.com/prompt-request/go-services/internal/accounts"
	"github.com/prompt-request/go-services/internal/config"
	"github.com/prompt-request/go-services/internal/database"
	"github.com/prompt-request/go-services/internal/document/repository"
	"github.com/prompt-request/go-services/internal/document/service"
	"github.com/prompt-request/go-services/internal/storage"
	"github.com/prompt-request/go-services/pkg/logger"
	"github.com/prompt-request/go-services/pkg/metrics"
	"github.com/prompt-request/go-services/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
)

const (
	accountWindow       = time.Second
	publicReadWindow    = time.Second
	accountCreateWindow = time.Hour
	janitorInterval     = time.Minute
	dbConnectAttempts   = 5
	purgeDrainTimeout   = 30 * time.Second
)

func main() {
	// LOG_LEVEL may be overridden by config below; init early so config
	// loading itself can log.
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)
	logger.SetFormat(cfg.Log.Format)
	logger.Infof("config loaded: rate_limit_backend=%s bucket=%s auto_migrate=%v", cfg.RateLimit.Backend, cfg.S3.Bucket, cfg.Database.AutoMigrate)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.ConnectWithRetry(ctx, cfg.Database, dbConnectAttempts)
	if err != nil {
		logger.Fatalf("failed to connect to Postgres: %v", err)
	}
	defer pool.Close()
	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(ctx, pool); err != nil {
			logger.Fatalf("failed to apply schema: %v", err)
		}
		logger.Infof("schema ensured")
	}

	mcfg := storage.LoadMinIOConfig(cfg.S3)
	blobs, err := storage.NewMinIOStorage(mcfg)
	if err != nil {
		logger.Fatalf("failed to create object storage client: %v", err)
	}
	if err := blobs.EnsureBucket(ctx, cfg.S3.CreateBucket, cfg.S3.Region); err != nil {
		logger.Fatalf("object storage bucket %s unavailable: %v", blobs.Bucket(), err)
	}
	logger.Infof("object storage ready: endpoint=%s bucket=%s", mcfg.Endpoint, blobs.Bucket())

	checks := map[string]handlers.Check{
		"database": pool.Ping,
		"storage":  blobs.Ping,
	}
	limiters, accountLimiter := buildLimiters(ctx, cfg, checks)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)

	store := repository.NewPostgresStore(pool)
	docs := service.NewCoordinator(store, blobs, service.WithDeleteRate(cfg.S3.DeleteRPS))
	router, err := handlers.NewRouter(handlers.Deps{
		Accounts:       accounts.NewService(accounts.NewPostgresRepository(pool), cfg.Auth.APIKeyPepper, accountLimiter),
		Documents:      docs,
		Reader:         service.NewReader(store, blobs),
		Limiters:       limiters,
		FrontPage:      loadFrontPage(cfg.FrontPage),
		Checks:         checks,
		TrustedProxies: cfg.Server.TrustedProxies,
		AccessLog:      true,
	})
	if err != nil {
		logger.Fatalf("failed to build router: %v", err)
	}

	serve(ctx, &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	})

	drainCtx, cancel := context.WithTimeout(context.Background(), purgeDrainTimeout)
	defer cancel()
	if err := docs.Wait(drainCtx); err != nil {
		logger.Warnf("blob purges still running at exit, remaining blobs are orphaned: %v", err)
	}
}

// buildLimiters returns the edge limiters plus the per-account limiter used
// by the authenticator.
func buildLimiters(ctx context.Context, cfg *config.Config, checks map[string]handlers.Check) (handlers.Limiters, ratelimit.Limiter) {
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
		}
		logger.Infof("rate limits shared through Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

		return handlers.Limiters{
				PublicRead:    ratelimit.Instrument("public_read", ratelimit.NewRedisFixedWindow(client, "rl:public_read:", publicReadWindow)),
				AccountCreate: ratelimit.Instrument("account_create", ratelimit.NewRedisFixedWindow(client, "rl:account_create:", accountCreateWindow)),
			},
			ratelimit.Instrument("account", ratelimit.NewRedisFixedWindow(client, "rl:account:", accountWindow))
	}

	memory := func(name string, window time.Duration) ratelimit.Limiter {
		l := ratelimit.NewFixedWindow(window)
		l.StartJanitor(ctx, janitorInterval)
		return ratelimit.Instrument(name, l)
	}
	return handlers.Limiters{
			PublicRead:    memory("public_read", publicReadWindow),
			AccountCreate: memory("account_create", accountCreateWindow),
		},
		memory("account", accountWindow)
}

func loadFrontPage(path string) string {
	page, err := handlers.LoadFrontPage(path)
	if err != nil {
		logger.Fatalf("failed to load front page: %v", err)
	}
	return page
}

// serve runs srv until ctx is cancelled, then drains in-flight requests.
func serve(ctx context.Context, srv *http.Server) {
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("prompt-request listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	case <-ctx.Done():
		logger.Infof("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("graceful shutdown failed: %v", err)
		}
	}
}
