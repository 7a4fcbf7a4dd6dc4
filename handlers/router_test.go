package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prompt-request/go-services/internal/accounts"
	"github.com/prompt-request/go-services/internal/document"
	"github.com/prompt-request/go-services/internal/document/repository"
	"github.com/prompt-request/go-services/internal/document/service"
	"github.com/prompt-request/go-services/internal/storage"
	"github.com/prompt-request/go-services/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

type allowAll struct{}

func (allowAll) Check(context.Context, string) error { return nil }

func newTestRouter(t *testing.T, lim Limiters, checks map[string]Check) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := repository.NewMemoryStore()
	blobs := storage.NewMemoryStorage()
	r, err := NewRouter(Deps{
		Accounts:  accounts.NewService(accounts.NewMemoryRepository(), "pepper", allowAll{}),
		Documents: service.NewCoordinator(store, blobs),
		Reader:    service.NewReader(store, blobs),
		Limiters:  lim,
		FrontPage: "# front",
		Checks:    checks,
	})
	require.NoError(t, err)
	return r
}

func serve(r http.Handler, method, path, ip string, hdr map[string]string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if ip != "" {
		req.RemoteAddr = ip + ":4000"
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createKey(t *testing.T, r http.Handler, ip string) string {
	t.Helper()
	w := serve(r, http.MethodPost, "/api/accounts", ip, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.True(t, len(out.APIKey) > len(accounts.KeyPrefix))
	return out.APIKey
}

func TestRouter_EndToEnd(t *testing.T) {
	r := newTestRouter(t, Limiters{PublicRead: allowAll{}, AccountCreate: allowAll{}}, nil)
	key := createKey(t, r, "10.0.0.1")
	auth := map[string]string{"Authorization": "Bearer " + key, "Content-Type": "application/x-ndjson"}

	w := serve(r, http.MethodPost, "/api/requests", "10.0.0.1", auth, []byte(`{"a":1}`+"\n"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cr document.Created
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cr))

	w = serve(r, http.MethodGet, "/"+cr.ID.String(), "10.0.0.2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	require.Equal(t, `{"a":1}`+"\n", w.Body.String())

	w = serve(r, http.MethodGet, "/api/requests", "10.0.0.1", map[string]string{"Authorization": "Bearer nope"}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
}

func TestRouter_AccountCreateLimitedPerIP(t *testing.T) {
	r := newTestRouter(t, Limiters{PublicRead: allowAll{}, AccountCreate: ratelimit.NewFixedWindow(time.Hour)}, nil)
	createKey(t, r, "10.0.0.1")

	w := serve(r, http.MethodPost, "/api/accounts", "10.0.0.1", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.JSONEq(t, `{"error":"rate_limited"}`, w.Body.String())
	secs, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, secs, 1)
	require.LessOrEqual(t, secs, 3600)

	// a different address is unaffected
	createKey(t, r, "10.0.0.2")
}

func TestRouter_PublicReadLimitedBeforeValidation(t *testing.T) {
	r := newTestRouter(t, Limiters{PublicRead: ratelimit.NewFixedWindow(time.Hour), AccountCreate: allowAll{}}, nil)

	require.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/", "10.0.0.9", nil, nil).Code)
	w := serve(r, http.MethodGet, "/not-a-uuid", "10.0.0.9", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	require.Equal(t, http.StatusBadRequest, serve(r, http.MethodGet, "/not-a-uuid", "10.0.0.10", nil, nil).Code)
}

func TestRouter_ForwardedForKeysLimiter(t *testing.T) {
	r := newTestRouter(t, Limiters{PublicRead: allowAll{}, AccountCreate: ratelimit.NewFixedWindow(time.Hour)}, nil)
	proxy := "10.0.0.1"

	w := serve(r, http.MethodPost, "/api/accounts", proxy, map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = serve(r, http.MethodPost, "/api/accounts", proxy, map[string]string{"X-Forwarded-For": "203.0.113.6"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	w = serve(r, http.MethodPost, "/api/accounts", proxy, map[string]string{"X-Forwarded-For": "203.0.113.5"}, nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_HealthAndReady(t *testing.T) {
	healthy := map[string]Check{"db": func(context.Context) error { return nil }}
	r := newTestRouter(t, Limiters{PublicRead: allowAll{}, AccountCreate: allowAll{}}, healthy)

	w := serve(r, http.MethodGet, "/healthz", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())

	w = serve(r, http.MethodGet, "/ready", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"db":true`)

	failing := map[string]Check{
		"db":      func(context.Context) error { return nil },
		"storage": func(context.Context) error { return errors.New("down") },
	}
	r = newTestRouter(t, Limiters{PublicRead: allowAll{}, AccountCreate: allowAll{}}, failing)
	w = serve(r, http.MethodGet, "/ready", "", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"storage":false`)

	w = serve(r, http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_RejectsBadProxy(t *testing.T) {
	_, err := NewRouter(Deps{TrustedProxies: []string{"not-an-ip"}})
	require.Error(t, err)
}
