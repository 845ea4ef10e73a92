package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client key in memory.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter allows perMinute requests per client with bursts of up to
// burst (perMinute when burst <= 0). perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst <= 0 {
		burst = perMinute
	}
	lim := rate.Limit(float64(perMinute) / 60)
	if perMinute <= 0 {
		lim = rate.Inf
	}
	return &RateLimiter{
		limit:   lim,
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *RateLimiter) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if !l.Allow(ip) {
			c.Header("Retry-After", strconv.Itoa(l.retryAfter()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}

// Allow consumes one token for key.
func (l *RateLimiter) Allow(key string) bool {
	if l.limit == rate.Inf {
		return true
	}
	now := l.now()
	l.mu.Lock()
	cl, ok := l.clients[key]
	if !ok {
		cl = &client{lim: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.seen = now
	l.mu.Unlock()
	return cl.lim.AllowN(now, 1)
}

// Sweep forgets clients idle for longer than the idle TTL and returns how
// many were dropped.
func (l *RateLimiter) Sweep() int {
	cutoff := l.now().Add(-l.idleTTL)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, cl := range l.clients {
		if cl.seen.Before(cutoff) {
			delete(l.clients, k)
			n++
		}
	}
	return n
}

func (l *RateLimiter) retryAfter() int {
	secs := int(1 / float64(l.limit))
	if secs < 1 {
		secs = 1
	}
	return secs
}
