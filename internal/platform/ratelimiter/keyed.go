package ratelimiter

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the bucket table so a scan of spoofed client IPs
// cannot grow it without bound.
const maxTrackedKeys = 4096

// Keyed throttles requests per client key (typically an IP). Idle buckets
// are swept on a time schedule, and when the table is full the stalest
// bucket makes room for a new client.
type Keyed struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	nextSweep time.Time
}

type clientBucket struct {
	tokens   *rate.Limiter
	lastSeen time.Time
}

// New returns a keyed limiter, or nil (meaning "allow everything") when the
// arguments describe no limit.
func New(rps float64, burst int, idleTTL time.Duration) *Keyed {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Keyed{
		limit:   rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		buckets: make(map[string]*clientBucket),
	}
}

// Allow reports whether one token can be consumed for key at now.
func (k *Keyed) Allow(key string, now time.Time) bool {
	if k == nil {
		return true
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return true
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.After(k.nextSweep) {
		k.sweepLocked(now)
		k.nextSweep = now.Add(k.idleTTL / 4)
	}

	b, ok := k.buckets[key]
	if !ok {
		if len(k.buckets) >= maxTrackedKeys {
			k.dropStalestLocked()
		}
		b = &clientBucket{tokens: rate.NewLimiter(k.limit, k.burst)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.tokens.AllowN(now, 1)
}

// Len reports how many client buckets are currently tracked.
func (k *Keyed) Len() int {
	if k == nil {
		return 0
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

func (k *Keyed) sweepLocked(now time.Time) {
	cutoff := now.Add(-k.idleTTL)
	for key, b := range k.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(k.buckets, key)
		}
	}
}

func (k *Keyed) dropStalestLocked() {
	var stalest string
	var oldest time.Time
	for key, b := range k.buckets {
		if stalest == "" || b.lastSeen.Before(oldest) {
			stalest, oldest = key, b.lastSeen
		}
	}
	delete(k.buckets, stalest)
}
