package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prompt-request/go-services/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

func newLimitedRouter(window time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitByIP(ratelimit.NewFixedWindow(window)))
	r.GET("/ok", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return r
}

func get(r *gin.Engine, remote, xff string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.RemoteAddr = remote
	if xff != "" {
		req.Header.Set("X-Forwarded-For", xff)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitByIP_BlocksSecondCallInWindow(t *testing.T) {
	r := newLimitedRouter(time.Hour)

	require.Equal(t, http.StatusOK, get(r, "10.0.0.1:1234", "").Code)

	w := get(r, "10.0.0.1:5678", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, retry, 1)
	require.LessOrEqual(t, retry, 3600)
	require.Contains(t, w.Body.String(), `"error":"rate_limited"`)

	// a different client is unaffected
	require.Equal(t, http.StatusOK, get(r, "10.0.0.2:1234", "").Code)
}

func TestRateLimitByIP_UsesFirstForwardedFor(t *testing.T) {
	r := newLimitedRouter(time.Hour)

	require.Equal(t, http.StatusOK, get(r, "127.0.0.1:1", "203.0.113.7, 10.0.0.1").Code)
	require.Equal(t, http.StatusTooManyRequests, get(r, "127.0.0.1:2", "203.0.113.7").Code)
	require.Equal(t, http.StatusOK, get(r, "127.0.0.1:3", "198.51.100.1").Code)
}

func TestRateLimitByIP_AllowsAfterWindow(t *testing.T) {
	r := newLimitedRouter(50 * time.Millisecond)

	require.Equal(t, http.StatusOK, get(r, "10.0.0.9:1", "").Code)
	require.Equal(t, http.StatusTooManyRequests, get(r, "10.0.0.9:1", "").Code)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, http.StatusOK, get(r, "10.0.0.9:1", "").Code)
}
