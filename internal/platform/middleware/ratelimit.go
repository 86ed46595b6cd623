package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long a client's limiter survives without traffic.
const idleLimiterTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	log      zerolog.Logger
	now      func() time.Time
	lastGC   time.Time
}

func NewIPRateLimiter(rps float64, burst int, log zerolog.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(rps),
		burst:    burst,
		log:      log,
		now:      time.Now,
	}
}

func (l *IPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastGC) > idleLimiterTTL {
		for key, entry := range l.limiters {
			if now.Sub(entry.lastSeen) > idleLimiterTTL {
				delete(l.limiters, key)
			}
		}
		l.lastGC = now
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (l *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := l.get(ip)
		if !limiter.Allow() {
			retry := 1
			if l.rate > 0 {
				retry = int(math.Ceil(1 / float64(l.rate)))
			}
			l.log.Warn().
				Str("request_id", GetRequestID(c)).
				Str("remote_ip", ip).
				Str("path", c.Request.URL.Path).
				Msg("rate limit exceeded")
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "rate_limited",
				"message":   "rate limit exceeded",
				"requestId": GetRequestID(c),
			})
			return
		}
		c.Next()
	}
}
