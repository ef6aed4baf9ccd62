package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"storefront/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// IPRateLimiter keeps one token bucket per client IP and forgets idle ones
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	r        rate.Limit
	burst    int
	evictTTL time.Duration
	now      func() time.Time
}

func NewIPRateLimiter(r rate.Limit, burst int, evictTTL time.Duration) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		r:        r,
		burst:    burst,
		evictTTL: evictTTL,
		now:      time.Now,
	}
}

// Allow reports whether the given IP is within its rate limit
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[ip]
	if !ok {
		l = rate.NewLimiter(rl.r, rl.burst)
		rl.limiters[ip] = l
	}
	now := rl.now()
	rl.lastSeen[ip] = now
	return l.AllowN(now, 1)
}

// Evict drops limiters not used within the eviction TTL
func (rl *IPRateLimiter) Evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := rl.now().Add(-rl.evictTTL)
	n := 0
	for ip, last := range rl.lastSeen {
		if last.Before(cutoff) {
			delete(rl.limiters, ip)
			delete(rl.lastSeen, ip)
			n++
		}
	}
	return n
}

// RunEviction evicts idle limiters until stop is closed
func (rl *IPRateLimiter) RunEviction(stop <-chan struct{}) {
	ticker := time.NewTicker(rl.evictTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.Evict()
		case <-stop:
			return
		}
	}
}

// RateLimit rejects requests over the per-IP limit with 429
func RateLimit(rl *IPRateLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.burst))
		if !rl.Allow(ip) {
			log.Warn("Rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Request.URL.Path))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Error(http.StatusTooManyRequests, "Rate limit exceeded"))
			return
		}
		c.Next()
	}
}
