package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// calcKey mirrors the calculate endpoint's keying: per company scope, with
// the remote address as fallback for unscoped callers.
func calcKey(r *http.Request) string {
	if scope := r.Header.Get("X-Company-ID"); scope != "" {
		return "calc:" + scope
	}
	return "calc:" + r.RemoteAddr
}

func TestHandlerMiddlewareEnforcesLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: Limiter{Client: client, Prefix: "telco:rl:"},
		Config: Config{
			Key:    calcKey,
			Window: time.Second,
			Max:    1,
		},
	}

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/calculate", nil)
	req.Header.Set("X-Company-ID", "acme")

	rr1 := httptest.NewRecorder()
	counted.ServeHTTP(rr1, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, rr1.Code)

	rr2 := httptest.NewRecorder()
	counted.ServeHTTP(rr2, req.Clone(req.Context()))
	require.Equal(t, http.StatusTooManyRequests, rr2.Code)
	require.Equal(t, "1", rr2.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr2.Header().Get("Retry-After"))
}

func TestHandlerMiddlewareScopesAreIndependent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: Limiter{Client: client, Prefix: "telco:rl:"},
		Config:  Config{Key: calcKey, Window: time.Second, Max: 1},
	}
	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/tax/calculate", nil)
	first.Header.Set("X-Company-ID", "acme")
	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, first)
	require.Equal(t, http.StatusOK, rr.Code)

	// Exhausting acme's budget must not throttle another company.
	other := httptest.NewRequest(http.MethodPost, "/api/v1/tax/calculate", nil)
	other.Header.Set("X-Company-ID", "globex")
	rr = httptest.NewRecorder()
	counted.ServeHTTP(rr, other)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestHandlerMiddlewareOnError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()

	handler := Handler{
		Limiter: Limiter{Client: client, Prefix: "telco:rl:"},
		Config: Config{
			Key:    calcKey,
			Window: time.Second,
			Max:    1,
		},
	}

	called := false
	handler.OnError = func(error) { called = true }

	counted := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tax/calculate", nil)
	req.Header.Set("X-Company-ID", "acme")
	rr := httptest.NewRecorder()
	counted.ServeHTTP(rr, req)

	// The limiter fails open so a Redis outage never blocks calculations.
	require.Equal(t, http.StatusOK, rr.Code)
	require.True(t, called)
}
