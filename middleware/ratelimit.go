package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	clients    map[string]*clientLimiter
	mu         sync.Mutex
	rate       rate.Limit // tokens per second
	bucketSize int        // maximum tokens
	idleTTL    time.Duration
	lastSweep  time.Time
}

// NewRateLimiter allows r requests per second per client with bursts of bucketSize
func NewRateLimiter(r float64, bucketSize int) *RateLimiter {
	return &RateLimiter{
		clients:    make(map[string]*clientLimiter),
		rate:       rate.Limit(r),
		bucketSize: bucketSize,
		idleTTL:    10 * time.Minute,
		lastSweep:  time.Now(),
	}
}

// Allow consumes a token for ip, reporting whether one was available
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	client, exists := rl.clients[ip]
	if !exists {
		client = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.bucketSize)}
		rl.clients[ip] = client
	}
	client.lastSeen = now

	return client.limiter.AllowN(now, 1)
}

// sweep forgets clients idle for longer than idleTTL; callers hold mu
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.idleTTL {
		return
	}

	for ip, client := range rl.clients {
		if now.Sub(client.lastSeen) > rl.idleTTL {
			delete(rl.clients, ip)
		}
	}
	rl.lastSweep = now
}

// RateLimit rejects clients that ran out of tokens with 429
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
			})
			return
		}

		c.Next()
	}
}
