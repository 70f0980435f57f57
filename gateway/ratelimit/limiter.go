// Package ratelimit implements the forwarder's rate-limit gate: an O(1),
// non-blocking passage decision keyed by (backend endpoint, source IP).
package ratelimit

import (
	"time"

	cache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// Limiter is the gate the forwarder consults before anything else.
// TokenBucket below is the gateway's reference implementation, but any
// algorithm satisfying this interface can be wired in instead.
type Limiter interface {
	RequestPassage(endpoint, sourceIP string) bool
}

// TokenBucket keeps one golang.org/x/time/rate limiter per (endpoint, IP)
// key inside a TTL cache, so idle keys are reclaimed without a
// bookkeeping goroutine the request path has to wait behind.
type TokenBucket struct {
	buckets *cache.Cache
	rps     rate.Limit
	burst   int
}

// NewTokenBucket builds a default limiter allowing rps requests per second
// per key, with the given burst, evicting idle keys after ttl.
func NewTokenBucket(rps float64, burst int, ttl time.Duration) *TokenBucket {
	return &TokenBucket{
		buckets: cache.New(ttl, ttl/2),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// RequestPassage reports whether the request may proceed. It never
// blocks: a miss creates a fresh bucket seeded with a full burst, a hit
// reuses the existing one.
func (t *TokenBucket) RequestPassage(endpoint, sourceIP string) bool {
	key := endpoint + "|" + sourceIP
	if existing, ok := t.buckets.Get(key); ok {
		return existing.(*rate.Limiter).Allow()
	}
	limiter := rate.NewLimiter(t.rps, t.burst)
	t.buckets.SetDefault(key, limiter)
	return limiter.Allow()
}

// AlwaysAllow is a Limiter that never denies passage, useful for tests and
// for endpoints with limiting disabled entirely.
type AlwaysAllow struct{}

// RequestPassage always returns true.
func (AlwaysAllow) RequestPassage(string, string) bool { return true }

// DenyNext is a test double that denies exactly the next call for a given
// key, then allows indefinitely.
type DenyNext struct {
	remaining map[string]int
}

// NewDenyNext builds an empty DenyNext limiter; use Deny to queue denials.
func NewDenyNext() *DenyNext {
	return &DenyNext{remaining: map[string]int{}}
}

// Deny marks the next call for this exact key as denied.
func (d *DenyNext) Deny(endpoint, sourceIP string) {
	d.remaining[endpoint+"|"+sourceIP]++
}

// RequestPassage implements Limiter.
func (d *DenyNext) RequestPassage(endpoint, sourceIP string) bool {
	key := endpoint + "|" + sourceIP
	if d.remaining[key] > 0 {
		d.remaining[key]--
		return false
	}
	return true
}
