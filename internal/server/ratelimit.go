package server

import (
	"sync"
	"time"
)

// loginKeyPrefix namespaces throttle counters so several services can share
// one Redis database.
const loginKeyPrefix = "cliphive:login:"

// RateLimitConfig tunes the two throttles the server applies: a global
// requests-per-second cap and a per-client login limit. The login limit
// counts attempts per LoginWindow and can be backed by Redis so replicas
// share one counter; without a Redis address each process keeps its own
// in-memory buckets.
type RateLimitConfig struct {
	GlobalRPS     float64
	GlobalBurst   int
	LoginLimit    int
	LoginWindow   time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
}

type rateLimiter struct {
	global       *tokenBucket
	loginLimit   int
	loginWindow  time.Duration
	loginMu      sync.Mutex
	loginBuckets map[string]*loginBucket
	store        tokenStore
}

// loginBucket tracks one client's login attempts. lastSeen drives eviction
// of clients that stopped trying.
type loginBucket struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type tokenStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		loginLimit:   cfg.LoginLimit,
		loginWindow:  cfg.LoginWindow,
		loginBuckets: make(map[string]*loginBucket),
	}
	if rl.loginLimit < 0 {
		rl.loginLimit = 0
	}
	if rl.loginWindow <= 0 {
		rl.loginWindow = time.Minute
	}
	if cfg.GlobalRPS > 0 {
		rl.global = newTokenBucket(cfg.GlobalRPS, globalBurst(cfg))
	}
	if cfg.RedisAddr != "" && rl.loginLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func globalBurst(cfg RateLimitConfig) int {
	if cfg.GlobalBurst > 0 {
		return cfg.GlobalBurst
	}
	if burst := int(cfg.GlobalRPS); burst >= 1 {
		return burst
	}
	return 1
}

// AllowRequest applies the global cap. A nil or uncapped limiter admits
// everything.
func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowLogin admits or rejects a login attempt for the given client key
// (normally the remote IP). When rejected, the returned duration is a hint
// for the Retry-After header.
func (r *rateLimiter) AllowLogin(key string) (bool, time.Duration, error) {
	if r == nil || r.loginLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(loginKeyPrefix+key, r.loginLimit, r.loginWindow)
	}
	if key == "" {
		key = "unknown"
	}

	r.loginMu.Lock()
	entry, exists := r.loginBuckets[key]
	if !exists {
		rate := float64(r.loginLimit) / r.loginWindow.Seconds()
		entry = &loginBucket{bucket: newTokenBucket(rate, r.loginLimit)}
		r.loginBuckets[key] = entry
	}
	entry.lastSeen = time.Now()
	r.evictIdleLocked()
	r.loginMu.Unlock()

	if entry.bucket.Allow() {
		return true, 0, nil
	}
	return false, entry.bucket.nextTokenIn(), nil
}

// evictIdleLocked drops clients idle for two full windows. Caller holds
// loginMu.
func (r *rateLimiter) evictIdleLocked() {
	if len(r.loginBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.loginWindow)
	for key, entry := range r.loginBuckets {
		if entry.lastSeen.Before(cutoff) {
			delete(r.loginBuckets, key)
		}
	}
}

// tokenBucket is a standard leaky counter: tokens accrue at rate per second
// up to capacity, and each admitted event spends one.
type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}

// nextTokenIn estimates how long until one token becomes available.
func (tb *tokenBucket) nextTokenIn() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	if tb.tokens >= 1 {
		return 0
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

func (tb *tokenBucket) refillLocked() {
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
}
