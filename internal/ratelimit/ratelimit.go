// Package ratelimit provides a per-user token bucket used to keep chatty
// websocket clients from flooding the gateway with heartbeat traffic.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

// PerUser hands out one token bucket per user id. Buckets that stay idle
// past the TTL are dropped so disconnected users do not accumulate.
type PerUser struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	checks  uint64
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPerUser returns nil when rps or burst is non-positive; a nil limiter
// allows everything, so callers can pass config values straight through.
func NewPerUser(rps float64, burst int) *PerUser {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return &PerUser{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: defaultIdleTTL,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token for userID at now.
func (p *PerUser) Allow(userID string, now time.Time) bool {
	if p == nil || userID == "" {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[userID] = b
	}
	b.lastSeen = now

	p.checks++
	if p.checks%256 == 0 {
		p.evictIdleLocked(now)
	}
	return b.limiter.AllowN(now, 1)
}

// Forget drops the bucket for a user, typically on final disconnect.
func (p *PerUser) Forget(userID string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	delete(p.buckets, userID)
	p.mu.Unlock()
}

func (p *PerUser) evictIdleLocked(now time.Time) {
	cutoff := now.Add(-p.idleTTL)
	for id, b := range p.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(p.buckets, id)
		}
	}
}
