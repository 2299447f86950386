package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	bucketIdleTTL   = 10 * time.Minute
	bucketSweepTick = 5 * time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimit is a set of per-client token buckets sharing one scope name,
// rate and burst. The scope labels the gridledger_rate_limited_total metric
// so the global limit and route limits (such as /mine) can be told apart.
type RateLimit struct {
	scope string
	limit rate.Limit
	burst int
	retry string

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimit creates a RateLimit admitting perSecond requests per client on
// average, with bursts up to burst. perSecond may be fractional: 0.2 admits
// one request every five seconds.
func NewRateLimit(scope string, perSecond float64, burst int) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	retry := 1
	if perSecond > 0 && perSecond < 1 {
		retry = int(math.Ceil(1 / perSecond))
	}
	return &RateLimit{
		scope:   scope,
		limit:   rate.Limit(perSecond),
		burst:   burst,
		retry:   strconv.Itoa(retry),
		buckets: make(map[string]*bucket),
	}
}

// Allow takes one token from key's bucket.
func (r *RateLimit) Allow(key string) bool {
	return r.allowAt(key, time.Now())
}

func (r *RateLimit) allowAt(key string, now time.Time) bool {
	r.mu.Lock()
	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.buckets[key] = b
	}
	b.lastSeen = now
	r.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Sweep drops buckets idle for longer than idle and returns how many remain.
func (r *RateLimit) Sweep(idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	for key, b := range r.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
	return len(r.buckets)
}

// Run sweeps idle buckets periodically until ctx is done.
func (r *RateLimit) Run(ctx context.Context) {
	ticker := time.NewTicker(bucketSweepTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep(bucketIdleTTL)
		case <-ctx.Done():
			return
		}
	}
}

// Middleware rejects requests over the limit with 429, keyed by client IP.
func (r *RateLimit) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			rateLimitedTotal.WithLabelValues(r.scope).Inc()
			c.Header("Retry-After", r.retry)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

// RateLimiter returns the router-wide per-IP limit. Idle buckets are swept
// until ctx is done.
func RateLimiter(ctx context.Context, rps, burst int) gin.HandlerFunc {
	rl := NewRateLimit("global", float64(rps), burst)
	go rl.Run(ctx)
	return rl.Middleware()
}
