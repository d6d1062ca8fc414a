package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(ip string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	r.Header.Set("X-REAL-IP", ip)
	return r
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows within burst, rejects over it", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 2, time.Minute)
		defer rl.Stop()
		handler := rl.Middleware(okHandler())

		for i := 0; i < 2; i++ {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, requestFrom("10.0.0.1"))
			assert.Equal(t, http.StatusOK, rr.Code)
		}

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	})

	t.Run("budgets are per IP", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1, time.Minute)
		defer rl.Stop()
		handler := rl.Middleware(okHandler())

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1"))
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, rr.Code)

		// A different client is unaffected.
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, requestFrom("10.0.0.2"))
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("cleanup drops idle buckets", func(t *testing.T) {
		rl := NewRateLimiter(1, 1, time.Minute)
		defer rl.Stop()

		rl.allow("10.0.0.1")
		rl.allow("10.0.0.2")
		assert.Len(t, rl.clients, 2)

		rl.mu.Lock()
		rl.clients["10.0.0.1"].lastAccess = time.Now().Add(-time.Hour)
		rl.mu.Unlock()

		rl.cleanup(30 * time.Minute)
		assert.Len(t, rl.clients, 1)
	})
}
