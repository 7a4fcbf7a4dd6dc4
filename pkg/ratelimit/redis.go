package ratelimit

import (
	"context"
	"time"

	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/redis/go-redis/v9"
)

// RedisFixedWindow shares FixedWindow semantics across replicas.
// Algorithm: SET key NX PX window admits the caller and starts its window;
// when the key already exists its PTTL is the remaining window.
type RedisFixedWindow struct {
	client *redis.Client
	prefix string
	window time.Duration
}

func NewRedisFixedWindow(client *redis.Client, prefix string, window time.Duration) *RedisFixedWindow {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisFixedWindow{client: client, prefix: prefix, window: window}
}

func (l *RedisFixedWindow) Window() time.Duration { return l.window }

func (l *RedisFixedWindow) Check(ctx context.Context, key string) error {
	k := l.prefix + key
	// the key can expire between SETNX and PTTL; retry a few times
	for attempt := 0; attempt < 3; attempt++ {
		ok, err := l.client.SetNX(ctx, k, time.Now().UnixMilli(), l.window).Result()
		if err != nil {
			return &apierror.Error{Kind: apierror.KindInternal, Message: "rate limit check failed", Err: err}
		}
		if ok {
			return nil
		}
		ttl, err := l.client.PTTL(ctx, k).Result()
		if err != nil {
			return &apierror.Error{Kind: apierror.KindInternal, Message: "rate limit check failed", Err: err}
		}
		switch {
		case ttl > 0:
			return apierror.RateLimited(ttl)
		case ttl == -1:
			// key without expiry (written by something else); restore the window
			_ = l.client.PExpire(ctx, k, l.window).Err()
			return apierror.RateLimited(l.window)
		}
	}
	return apierror.RateLimited(time.Second)
}
