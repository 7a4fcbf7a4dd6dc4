package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/pkg/metrics"
)

// Limiter decides whether the action identified by key may proceed now.
// A rejection is an *apierror.Error of kind rate_limited carrying RetryAfter.
type Limiter interface {
	Check(ctx context.Context, key string) error
}

// FixedWindow admits one action per key per window. Each admitted action
// restarts the key's window; rejected calls leave it untouched.
type FixedWindow struct {
	window time.Duration
	now    func() time.Time
	epoch  time.Time

	// key -> int64 nanoseconds since epoch of the last permitted instant
	entries sync.Map
}

type Option func(*FixedWindow)

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) { l.now = now }
}

func NewFixedWindow(window time.Duration, opts ...Option) *FixedWindow {
	l := &FixedWindow{window: window, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.epoch = l.now()
	return l
}

func (l *FixedWindow) Window() time.Duration { return l.window }

func (l *FixedWindow) offset() int64 {
	return int64(l.now().Sub(l.epoch))
}

func (l *FixedWindow) Check(_ context.Context, key string) error {
	now := l.offset()
	for {
		prev, loaded := l.entries.LoadOrStore(key, now)
		if !loaded {
			return nil
		}
		last := prev.(int64)
		if elapsed := time.Duration(now - last); elapsed < l.window {
			remaining := l.window - elapsed
			if remaining > l.window {
				// a concurrent caller renewed the entry after our clock read
				remaining = l.window
			}
			return apierror.RateLimited(remaining)
		}
		if l.entries.CompareAndSwap(key, last, now) {
			return nil
		}
	}
}

// Sweep drops entries whose window has passed and returns how many were
// removed. An entry renewed while sweeping is kept.
func (l *FixedWindow) Sweep() int {
	now := l.offset()
	removed := 0
	l.entries.Range(func(k, v any) bool {
		if time.Duration(now-v.(int64)) >= l.window && l.entries.CompareAndDelete(k, v) {
			removed++
		}
		return true
	})
	return removed
}

// Len returns the number of tracked keys.
func (l *FixedWindow) Len() int {
	n := 0
	l.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// StartJanitor sweeps expired keys every interval until ctx is done.
func (l *FixedWindow) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Sweep()
			}
		}
	}()
}

type instrumented struct {
	name string
	next Limiter
}

// Instrument counts allowed and rejected checks under the given limiter name.
func Instrument(name string, l Limiter) Limiter {
	return &instrumented{name: name, next: l}
}

func (i *instrumented) Check(ctx context.Context, key string) error {
	err := i.next.Check(ctx, key)
	switch {
	case err == nil:
		metrics.RateLimitAllowed.WithLabelValues(i.name).Inc()
	case apierror.Is(err, apierror.KindRateLimited):
		metrics.RateLimitRejected.WithLabelValues(i.name).Inc()
	}
	return err
}
