// Package ratelimit throttles inbound requests with per-client token buckets.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Rule limits one method on a path. A Path ending in "/" matches by prefix.
type Rule struct {
	Method string
	Path   string
	Limit  int
	Window time.Duration
	Burst  int
}

// Config holds limiter settings.
type Config struct {
	Enabled       bool
	DefaultLimit  int
	DefaultWindow time.Duration
	IdleTTL       time.Duration
	Rules         []Rule
}

// DefaultRules covers the routes that start work or accept provider callbacks.
// Reads fall through to the default limit.
func DefaultRules(perMinute int) []Rule {
	return []Rule{
		{Method: "POST", Path: "/shifts/", Limit: perMinute, Window: time.Minute, Burst: perMinute / 4},
		{Method: "POST", Path: "/attempts/", Limit: perMinute, Window: time.Minute, Burst: perMinute / 4},
		// Gateways batch deliveries; give them headroom.
		{Method: "POST", Path: "/webhooks/", Limit: perMinute * 5, Window: time.Minute},
	}
}

// match returns the rule for method and path, or nil.
func match(rules []Rule, method, path string) *Rule {
	if path == "/health" || path == "/metrics" {
		return &Rule{}
	}
	for i := range rules {
		if rules[i].Method == method && rules[i].Path == path {
			return &rules[i]
		}
	}
	for i := range rules {
		r := &rules[i]
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	return nil
}

type bucket struct {
	capacity float64
	rate     float64 // tokens per second
	tokens   float64
	last     time.Time
}

func (b *bucket) refill(now time.Time) {
	b.tokens = min(b.capacity, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
}

// Info describes the limit state after a decision.
type Info struct {
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter tracks one bucket per client, rule and method.
type Limiter struct {
	cfg     Config
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewLimiter creates a Limiter.
func NewLimiter(cfg Config) *Limiter {
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	return &Limiter{cfg: cfg, buckets: make(map[string]*bucket), now: time.Now}
}

// Allow consumes one token for clientID on method and path.
func (l *Limiter) Allow(clientID, method, path string) (bool, Info) {
	if !l.cfg.Enabled {
		return true, Info{}
	}
	rule := match(l.cfg.Rules, method, path)
	if rule == nil {
		rule = &Rule{Path: "*", Limit: l.cfg.DefaultLimit, Window: l.cfg.DefaultWindow}
	}
	if rule.Limit <= 0 {
		return true, Info{}
	}

	capacity := rule.Burst
	if capacity <= 0 {
		capacity = rule.Limit
	}
	key := clientID + "|" + method + "|" + rule.Path

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{
			capacity: float64(capacity),
			rate:     float64(rule.Limit) / rule.Window.Seconds(),
			tokens:   float64(capacity),
			last:     now,
		}
		l.buckets[key] = b
	}
	b.refill(now)

	if b.tokens >= 1 {
		b.tokens--
		return true, Info{Limit: rule.Limit, Remaining: int(b.tokens)}
	}
	wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	return false, Info{Limit: rule.Limit, RetryAfter: wait}
}

// Prune drops buckets idle for longer than the configured TTL and returns how
// many were removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleTTL)
	n := 0
	for key, b := range l.buckets {
		if b.last.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}
