package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/stretchr/testify/assert"
)

func newLimiter(limit int, window time.Duration) (*RateLimiter, *fakeclock.FakeClock) {
	clk := fakeclock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewRateLimiter(limit, window, clk), clk
}

func TestRateLimiter_Allow(t *testing.T) {
	limiter, _ := newLimiter(3, time.Second)

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow("192.168.1.1"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow("192.168.1.1"), "4th request should be blocked")
	assert.True(t, limiter.Allow("192.168.1.2"), "different key is independent")
}

func TestRateLimiter_WindowExpiration(t *testing.T) {
	limiter, clk := newLimiter(2, 500*time.Millisecond)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.1")
	assert.False(t, limiter.Allow("192.168.1.1"))

	clk.Increment(600 * time.Millisecond)
	assert.True(t, limiter.Allow("192.168.1.1"))
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter, clk := newLimiter(5, 100*time.Millisecond)

	limiter.Allow("192.168.1.1")
	limiter.Allow("192.168.1.2")
	limiter.Allow("192.168.1.3")
	assert.Equal(t, 3, limiter.Keys())

	clk.Increment(150 * time.Millisecond)
	limiter.Allow("192.168.1.4")
	assert.Equal(t, 1, limiter.Keys(), "idle keys are forgotten")
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newLimiter(1, time.Minute)
	h := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/deauth", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:5001"), "keyed by host, not port")
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:5000"))
}
