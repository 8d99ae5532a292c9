// Package engine implements the dispatch router of the bot: the single
// entry point that maps an inbound transport event, together with the
// originating user's conversation step, to exactly one handler.
//
// This file implements a lightweight, in-memory, token-bucket throttle
// with per-user buckets and opportunistic garbage collection. It protects
// the engine from a single chat flooding it with events; it is process-local
// and not an authorization mechanism.
package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// bucket holds a single rate limiter and the last time it was seen.
// Used to opportunistically evict idle buckets.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// UserLimiter implements a per-user token-bucket throttle.
//
// Buckets are created on demand and stored in an internal map guarded by a
// mutex. Idle buckets are evicted after a TTL via opportunistic cleanup
// during lookups to keep memory usage bounded.
//
// This type is safe for concurrent use.
type UserLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	buckets  map[int64]*bucket
	ttl      time.Duration
	cleanupN uint64
}

// NewUserLimiter constructs a UserLimiter with the given tokens-per-second
// and burst size. A burst <= 0 is coerced to 1. An rps of 0 disables the
// throttle entirely (every event is allowed).
func NewUserLimiter(rps float64, burst int) *UserLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &UserLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[int64]*bucket),
		ttl:     10 * time.Minute, // evict idle entries after TTL
	}
}

// Allow reports whether an event from userID may be processed now.
func (l *UserLimiter) Allow(userID int64) bool {
	if l.rps == 0 {
		return true
	}
	return l.get(userID).Allow()
}

// get returns (and refreshes) the limiter for userID, creating it if
// absent. It also performs opportunistic GC of idle entries after ~5000
// lookups, before touching the requested bucket so an idle one can be
// evicted even when it is the one being fetched.
func (l *UserLimiter) get(userID int64) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	l.cleanupN++
	if l.cleanupN >= 5000 {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) >= l.ttl {
				delete(l.buckets, k)
			}
		}
		l.cleanupN = 0
	}

	if b, ok := l.buckets[userID]; ok {
		b.lastSeen = now
		lim := b.limiter
		l.mu.Unlock()
		return lim
	}

	lim := rate.NewLimiter(l.rps, l.burst)
	l.buckets[userID] = &bucket{limiter: lim, lastSeen: now}
	l.mu.Unlock()
	return lim
}
