package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterPool hands out one token bucket per client IP and drops buckets
// that have sat idle longer than maxIdle.
type limiterPool struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket
	rps     rate.Limit
	burst   int
	maxIdle time.Duration
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterPool(rps, burst int, maxIdle time.Duration) *limiterPool {
	return &limiterPool{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		maxIdle: maxIdle,
	}
}

func (p *limiterPool) allow(ip string) bool {
	p.mu.Lock()
	b, ok := p.buckets[ip]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(p.rps, p.burst)}
		p.buckets[ip] = b
	}
	b.lastSeen = time.Now()
	p.mu.Unlock()
	return b.limiter.Allow()
}

func (p *limiterPool) sweep(every time.Duration) {
	for {
		time.Sleep(every)
		cutoff := time.Now().Add(-p.maxIdle)
		p.mu.Lock()
		for ip, b := range p.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(p.buckets, ip)
			}
		}
		p.mu.Unlock()
	}
}

// RateLimiter returns a Gin middleware enforcing per-IP token-bucket
// rate limiting. rps is the steady-state requests per second; burst the
// maximum burst. Buckets idle for ten minutes are discarded by a sweep
// every five minutes.
func RateLimiter(rps, burst int) gin.HandlerFunc {
	return rateLimiterWith(rps, burst, 5*time.Minute, 10*time.Minute)
}

func rateLimiterWith(rps, burst int, sweepEvery, maxIdle time.Duration) gin.HandlerFunc {
	pool := newLimiterPool(rps, burst, maxIdle)
	go pool.sweep(sweepEvery)

	return func(c *gin.Context) {
		if !pool.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
