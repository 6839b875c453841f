package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig tunes the request budget applied to each client key.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig allows sustained traffic of 100 requests per
// second with bursts up to 200.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{RequestsPerSecond: 100, BurstSize: 200}
}

// bucketIdleTTL is how long a key's bucket may sit unused before the store
// drops it. Any bucket idle that long has refilled to burst capacity, so a
// fresh bucket behaves identically.
const bucketIdleTTL = 10 * time.Minute

// tokenBucket is one key's refilling token budget.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	rate       float64 // tokens credited per second
	lastRefill time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(burst),
		burst:      float64(burst),
		rate:       rate,
		lastRefill: time.Now(),
	}
}

// refillLocked credits tokens for the time elapsed since the last refill,
// capped at the burst size. The caller holds b.mu.
func (b *tokenBucket) refillLocked(now time.Time) {
	b.tokens = min(b.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*b.rate)
	b.lastRefill = now
}

func (b *tokenBucket) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// retryAfter estimates whole seconds until the next token, at least one.
func (b *tokenBucket) retryAfter() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rate <= 0 {
		return 1
	}
	return int((1-b.tokens)/b.rate) + 1
}

func (b *tokenBucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRefill.Before(cutoff)
}

// rateLimiterStore holds per-key token buckets and sweeps out idle ones as
// new keys arrive.
type rateLimiterStore struct {
	mu        sync.RWMutex
	buckets   map[string]*tokenBucket
	cfg       RateLimitConfig
	lastPrune time.Time
}

func newRateLimiterStore(cfg RateLimitConfig) *rateLimiterStore {
	return &rateLimiterStore{
		buckets:   map[string]*tokenBucket{},
		cfg:       cfg,
		lastPrune: time.Now(),
	}
}

func (s *rateLimiterStore) getBucket(key string) *tokenBucket {
	s.mu.RLock()
	b := s.buckets[key]
	s.mu.RUnlock()
	if b != nil {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b = s.buckets[key]; b == nil {
		s.sweepLocked(time.Now())
		b = newTokenBucket(s.cfg.RequestsPerSecond, s.cfg.BurstSize)
		s.buckets[key] = b
	}
	return b
}

// sweepLocked drops buckets idle past the TTL. It runs at most once per TTL
// window so steady traffic does not rescan the map on every new key. The
// caller holds the write lock.
func (s *rateLimiterStore) sweepLocked(now time.Time) {
	if now.Sub(s.lastPrune) < bucketIdleTTL {
		return
	}
	s.lastPrune = now

	cutoff := now.Add(-bucketIdleTTL)
	for key, b := range s.buckets {
		if b.idleSince(cutoff) {
			delete(s.buckets, key)
		}
	}
}

// rateLimitKey buckets authenticated traffic per user and anonymous
// traffic per source address.
func rateLimitKey(c echo.Context) string {
	ip := c.RealIP()
	userID, _ := c.Get("user_id").(string)
	if userID == "" {
		return ip
	}
	return userID + ":" + ip
}

// RateLimit enforces a per-client token bucket and reports the budget
// through X-RateLimit headers.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newRateLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			header.Set("X-RateLimit-Limit", limit)

			bucket := store.getBucket(rateLimitKey(c))
			if !bucket.allow() {
				header.Set("X-RateLimit-Remaining", "0")
				header.Set("Retry-After", strconv.Itoa(bucket.retryAfter()))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
