package handlers

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/d4l-data4life/go-image-studio/pkg/config"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

const (
	rateLimiterExpiry  = time.Hour
	rateLimiterCleanup = 10 * time.Minute
)

// RateLimiter keeps one token bucket per user. Idle buckets expire from the store.
type RateLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	burst    int
	clients  *cache.Cache
}

// NewRateLimiter returns nil when cfg disables rate limiting
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	if cfg.PerMinute <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		interval: time.Minute / time.Duration(cfg.PerMinute),
		burst:    burst,
		clients:  cache.New(rateLimiterExpiry, rateLimiterCleanup),
	}
}

// Allow reports whether key may make another request now
func (l *RateLimiter) Allow(key string) bool {
	return l.limiter(key).Allow()
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.clients.Get(key); ok {
		limiter := v.(*rate.Limiter)
		// refresh the expiry
		l.clients.SetDefault(key, limiter)
		return limiter
	}
	limiter := rate.NewLimiter(rate.Every(l.interval), l.burst)
	l.clients.SetDefault(key, limiter)
	return limiter
}

// Middleware limits requests per authenticated user. A nil limiter lets everything through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := GetUserIDFromContext(r.Context()).String()
		if !l.Allow(key) {
			logging.LogDebugf("Rate limit exceeded for user %s on %s", key, r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(l.interval.Seconds()))))
			renderError(w, r, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
