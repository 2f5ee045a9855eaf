package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	count        int
	firstAttempt time.Time
}

// Result reports the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	RemainingAttempts int
	// RetryAfter is the number of seconds until the lockout lifts.
	// Zero unless the check was denied.
	RetryAfter int
}

// Config tunes the limiter. Zero values fall back to the defaults used for
// login throttling: 5 attempts per 15-minute window, 30-minute lockout,
// at most 10000 tracked keys.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
	CacheSize   int
}

// Limiter is a fixed-window attempt counter keyed by ip+identifier pairs.
// Entries live in a bounded LRU cache with a per-entry TTL so abandoned
// keys age out on their own. Construct one per process and inject it into
// the handlers that need it.
type Limiter struct {
	mu          sync.Mutex
	cache       *expirable.LRU[string, *entry]
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = 30 * time.Minute
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	return &Limiter{
		cache:       expirable.NewLRU[string, *entry](cfg.CacheSize, nil, cfg.Window),
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		lockout:     cfg.Lockout,
		now:         time.Now,
	}
}

// Check records an attempt for key and reports whether it is allowed.
// The read-modify-write is done under a single lock so concurrent failed
// attempts never under-count.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, ok := l.cache.Get(key)
	if !ok || now.Sub(e.firstAttempt) > l.window {
		l.cache.Add(key, &entry{count: 1, firstAttempt: now})
		return Result{Allowed: true, RemainingAttempts: l.maxAttempts - 1}
	}

	if e.count >= l.maxAttempts {
		// The lockout is deliberately longer than the counting window.
		retryAfter := int(e.firstAttempt.Add(l.lockout).Sub(now).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		return Result{Allowed: false, RemainingAttempts: 0, RetryAfter: retryAfter}
	}

	e.count++
	l.cache.Add(key, e)
	return Result{Allowed: true, RemainingAttempts: l.maxAttempts - e.count}
}

// Reset deletes the entry for key. Called after a successful login so a
// legitimate user starts with a clean counter.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache.Remove(key)
}

// Key derives the limiter key from a client IP and an identifier such as an
// email. Keying on the pair means one attacker cannot lock out every user
// from a single IP, and one identity is not locked globally across IPs.
func Key(ip, identifier string) string {
	if ip == "" {
		ip = "unknown"
	}
	return ip + "|" + strings.ToLower(identifier)
}
