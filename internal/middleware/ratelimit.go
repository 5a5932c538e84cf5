package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/ryu-qqq/setof-commerce-sub021/pkg/cache"
	"github.com/ryu-qqq/setof-commerce-sub021/pkg/logger"
)

// RateLimiter applies a fixed-window rate limit per caller.
type RateLimiter struct {
	counter cache.Counter
	limit   int
	window  time.Duration
	logger  logger.Logger
}

func NewRateLimiter(counter cache.Counter, limit int, window time.Duration, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		logger:  log,
	}
}

// Limit keys the window by actor when authenticated, otherwise by client IP. A zero limit lets
// every request through.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		}
		key := fmt.Sprintf("ratelimit:%s", ip)
		if actor, ok := ActorFromContext(r.Context()); ok {
			key = fmt.Sprintf("ratelimit:actor:%s", actor.ID)
		}

		count, err := rl.counter.Incr(r.Context(), key, rl.window)
		if err != nil {
			rl.logger.Error("Rate limit counter failed", map[string]interface{}{
				"key":   key,
				"error": err,
			})
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		if count > int64(rl.limit) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			jsonError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(rl.limit)-count, 10))

		next.ServeHTTP(w, r)
	})
}
