// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the per-identity token-bucket limiter that guards the
// account and search API. Signup and login are the expensive calls (bcrypt,
// Google token verification), so an anonymous client is keyed by IP and a
// signed-in one by user ID.
//
// Relay connections must be exempted: a WebSocket session is one request
// that can last for hours, and frame-level limits are enforced by the relay
// itself. Buckets live in process memory, which matches the relay's own
// per-process presence.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	// bucketIdleTTL is how long an untouched bucket survives a sweep.
	bucketIdleTTL = 10 * time.Minute
	// sweepEvery bounds how often the bucket map is scanned.
	sweepEvery = time.Minute
)

// keyFunc maps a request to its bucket identity.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by "user:<id>" when Authenticate resolved a
// session token, and by "ip:<addr>" otherwise.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := c.GetString(userIDKey); id != "" {
			return "user:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a set of token buckets keyed by keyFunc. It is safe for
// concurrent use.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn keyFunc
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	ttl       time.Duration
	lastSweep time.Time

	exempt map[string]struct{}
}

// NewRateLimiter builds a limiter refilling rps tokens per second up to
// burst (at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	now := time.Now
	return &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		keyFn:     keyFn,
		now:       now,
		buckets:   make(map[string]*bucket),
		ttl:       bucketIdleTTL,
		lastSweep: now(),
	}
}

// Exempt registers exact request paths that bypass limiting. It returns rl
// for chaining and must be called before serving traffic.
func (rl *RateLimiter) Exempt(paths ...string) *RateLimiter {
	if rl.exempt == nil {
		rl.exempt = make(map[string]struct{}, len(paths))
	}
	for _, p := range paths {
		if p != "" {
			rl.exempt[p] = struct{}{}
		}
	}
	return rl
}

func (rl *RateLimiter) isExempt(c *gin.Context) bool {
	_, ok := rl.exempt[c.Request.URL.Path]
	return ok
}

// limiterFor returns the bucket for key, creating it on first use. Idle
// buckets are swept first, so a stale bucket for key itself is replaced by
// a full one.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= sweepEvery {
		rl.sweepLocked(now)
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for k, b := range rl.buckets {
		if now.Sub(b.seen) >= rl.ttl {
			delete(rl.buckets, k)
		}
	}
	rl.lastSweep = now
}

// retryAfter is the whole number of seconds until lim has a token again,
// never less than 1.
func (rl *RateLimiter) retryAfter(lim *rate.Limiter) int {
	if rl.limit <= 0 {
		return 1
	}
	missing := 1 - lim.TokensAt(rl.now())
	secs := int(math.Ceil(missing / float64(rl.limit)))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Handler enforces the limits. Denied requests get 429, a Retry-After
// header and the standard error envelope with code "rate_limited".
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.isExempt(c) {
			c.Next()
			return
		}

		lim := rl.limiterFor(rl.keyFn(c))
		if lim.AllowN(rl.now(), 1) {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(rl.retryAfter(lim)))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.GetString(requestIDKey),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
			"error":      "rate limit exceeded",
		})
	}
}
