package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prompt-request/go-services/internal/apierror"
	"github.com/prompt-request/go-services/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestFixedWindow_SecondCallInsideWindowIsRejected(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(time.Second, WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "a"))

	clk.Advance(300 * time.Millisecond)
	err := l.Check(ctx, "a")
	require.Error(t, err)
	require.True(t, apierror.Is(err, apierror.KindRateLimited))
	apiErr := apierror.As(err)
	require.Equal(t, 700*time.Millisecond, apiErr.RetryAfter)
	require.Equal(t, int64(1), apiErr.RetryAfterSeconds())
}

func TestFixedWindow_CallsAWindowApartBothAccept(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(time.Second, WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "a"))
	clk.Advance(time.Second)
	require.NoError(t, l.Check(ctx, "a"))
	// the accepted call restarted the window
	clk.Advance(999 * time.Millisecond)
	require.Error(t, l.Check(ctx, "a"))
}

func TestFixedWindow_RejectionDoesNotExtendWindow(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(time.Second, WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "a"))
	clk.Advance(900 * time.Millisecond)
	require.Error(t, l.Check(ctx, "a"))
	clk.Advance(100 * time.Millisecond)
	require.NoError(t, l.Check(ctx, "a"))
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(time.Hour, WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "10.0.0.1"))
	require.NoError(t, l.Check(ctx, "10.0.0.2"))
	require.Error(t, l.Check(ctx, "10.0.0.1"))
	require.Error(t, l.Check(ctx, "10.0.0.2"))
}

func TestFixedWindow_HourWindowRetryAfter(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(time.Hour, WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "ip"))
	clk.Advance(10 * time.Minute)
	err := l.Check(ctx, "ip")
	require.Equal(t, int64(50*60), apierror.As(err).RetryAfterSeconds())
}

func TestFixedWindow_ConcurrentSameKeyAdmitsOne(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(time.Second, WithClock(clk.Now))
	ctx := context.Background()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(ctx, "shared") == nil {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), admitted.Load())
}

func TestFixedWindow_SweepRemovesExpiredOnly(t *testing.T) {
	clk := newClock()
	l := NewFixedWindow(time.Second, WithClock(clk.Now))
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "old"))
	clk.Advance(2 * time.Second)
	require.NoError(t, l.Check(ctx, "fresh"))

	require.Equal(t, 1, l.Sweep())
	require.Equal(t, 1, l.Len())
	require.Error(t, l.Check(ctx, "fresh"))
	require.NoError(t, l.Check(ctx, "old"))
}

func TestInstrumentCountsOutcomes(t *testing.T) {
	name := fmt.Sprintf("test_%d", time.Now().UnixNano())
	l := Instrument(name, NewFixedWindow(time.Hour))
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, "k"))
	require.Error(t, l.Check(ctx, "k"))
	require.Error(t, l.Check(ctx, "k"))

	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues(name)))
	require.Equal(t, 2.0, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues(name)))
}
