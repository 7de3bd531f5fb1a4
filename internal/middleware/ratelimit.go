// internal/middleware/ratelimit.go

package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per caller.
type RateLimiter struct {
	every    rate.Limit
	burst    int
	limiters sync.Map // key -> *rate.Limiter
}

func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		every: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
	}
}

// Allow spends one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	l, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.every, rl.burst))
	return l.(*rate.Limiter).Allow()
}

// RateLimit answers 429 once the caller's bucket is empty. Signed-in callers are keyed by
// user id, everyone else by remote address.
func RateLimit(rl *RateLimiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := remoteHost(r.RemoteAddr)
			if id, ok := UserFromContext(r.Context()); ok {
				key = id.UserID.String()
			}
			if !rl.Allow(key) {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again shortly")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
