package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/thesara-space/forge/internal/shared/apperr"
)

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
	}
}

// idleLimiterTTL is how long an unused limiter is kept.
const idleLimiterTTL = 10 * time.Minute

// KeyedLimiter holds one token bucket per key.
type KeyedLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter creates a limiter allowing limit events per second with
// the given burst for every key.
func NewKeyedLimiter(limit rate.Limit, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limit:   limit,
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// NewWindowLimiter allows n events per window for every key.
func NewWindowLimiter(n int, window time.Duration) *KeyedLimiter {
	return NewKeyedLimiter(rate.Every(window/time.Duration(n)), n)
}

// Allow reports whether one more event for key is allowed now.
func (k *KeyedLimiter) Allow(key string) bool {
	now := k.now()

	k.mu.Lock()
	c, ok := k.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(k.limit, k.burst)}
		k.clients[key] = c
	}
	c.lastSeen = now
	if now.Sub(k.lastSweep) > idleLimiterTTL {
		k.sweep(now)
	}
	k.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (k *KeyedLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.clients)
}

func (k *KeyedLimiter) sweep(now time.Time) {
	for key, c := range k.clients {
		if now.Sub(c.lastSeen) > idleLimiterTTL {
			delete(k.clients, key)
		}
	}
	k.lastSweep = now
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := NewKeyedLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	return LimitBy(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// LimitBy rejects requests whose key is over its limit. An empty key is
// never limited.
func LimitBy(limiter *KeyedLimiter, key func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		k := key(c)
		if k != "" && !limiter.Allow(k) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   apperr.RateLimited,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   apperr.RateLimited,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
