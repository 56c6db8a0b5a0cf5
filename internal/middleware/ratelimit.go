package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// RateLimiter is a token bucket per key, by default the client IP.
type RateLimiter struct {
	clock    clock.Clock
	rate     int           // Tokens per interval
	interval time.Duration // Refill interval
	keyFn    func(c *gin.Context) string

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	tokens   int
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter allowing rate requests per interval.
func NewRateLimiter(rate int, interval time.Duration, clk clock.Clock) *RateLimiter {
	return &RateLimiter{
		clock:    clk,
		rate:     rate,
		interval: interval,
		keyFn:    func(c *gin.Context) string { return c.ClientIP() },
		visitors: make(map[string]*visitor),
	}
}

// KeyByStudent buckets authenticated requests per student instead of per
// IP, so a shared lab NAT does not throttle a whole classroom.
func (rl *RateLimiter) KeyByStudent() *RateLimiter {
	rl.keyFn = func(c *gin.Context) string {
		if claims := GetClaims(c); claims != nil {
			return "student:" + claims.Subject
		}
		return c.ClientIP()
	}
	return rl
}

// Middleware returns a Gin middleware enforcing the limit.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.allow(rl.keyFn(c)) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}

// Allow takes a token for the request's key. Handlers that multiplex many
// actions over one connection call it per action.
func (rl *RateLimiter) Allow(c *gin.Context) bool {
	return rl.allow(rl.keyFn(c))
}

func (rl *RateLimiter) allow(key string) bool {
	now := rl.clock.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{tokens: rl.rate, lastSeen: now}
		rl.visitors[key] = v
	}

	// Refill whole intervals only.
	if refill := int(now.Sub(v.lastSeen)/rl.interval) * rl.rate; refill > 0 {
		v.tokens = min(v.tokens+refill, rl.rate)
		v.lastSeen = now
	}

	if v.tokens <= 0 {
		return false
	}
	v.tokens--
	return true
}

// Run evicts stale buckets every minute until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := rl.clock.Ticker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := rl.clock.Now().Add(-3 * rl.interval)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
		}
	}
}
