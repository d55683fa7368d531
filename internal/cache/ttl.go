// Package cache implements the TTL cache fronting the persistent storage
// layer: key -> value with per-entry expiry, lazy eviction on read, and an
// explicit cleanup sweep with running diagnostics.
package cache

import (
	"sync"
	"time"
)

type entry struct {
	value any
	setAt time.Time
	ttl   time.Duration // 0 = never auto-expire
}

// Stats is a point-in-time view of cache bookkeeping.
type Stats struct {
	Size               int       `json:"size"`
	Hits               uint64    `json:"hits"`
	Misses             uint64    `json:"misses"`
	CleanupInvocations uint64    `json:"cleanup_invocations"`
	ExpiredEntries     uint64    `json:"expired_entries"`
	ExpiredViaOverride uint64    `json:"expired_via_override"`
	LastCleanup        time.Time `json:"last_cleanup"`
}

// TTL is a small in-memory cache with per-entry time-to-live.
//
// It is safe for concurrent use. Expired entries are evicted lazily on Get
// and in bulk via CleanupExpired.
type TTL struct {
	mu      sync.Mutex
	entries map[string]entry

	hits        uint64
	misses      uint64
	cleanups    uint64
	expired     uint64
	viaOverride uint64
	lastCleanup time.Time

	// now is swappable for tests.
	now func() time.Time
}

func NewTTL() *TTL {
	return &TTL{
		entries: map[string]entry{},
		now:     time.Now,
	}
}

// Set stores value under key. A ttl <= 0 is normalized to 0, meaning the
// entry never auto-expires through Get; it can still be removed explicitly
// or force-expired by a CleanupExpired override.
func (c *TTL) Set(key string, value any, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, setAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Get returns the live value for key, or def when the key is absent or its
// TTL has elapsed. Expired entries are removed on the way out.
func (c *TTL) Get(key string, def any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return def
	}
	if e.ttl > 0 && !c.now().Before(e.setAt.Add(e.ttl)) {
		delete(c.entries, key)
		c.misses++
		return def
	}
	c.hits++
	return e.value
}

// Has reports whether key is present and not expired, without touching
// hit/miss bookkeeping.
func (c *TTL) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if e.ttl > 0 && !c.now().Before(e.setAt.Add(e.ttl)) {
		delete(c.entries, key)
		return false
	}
	return true
}

func (c *TTL) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TTL) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CleanupExpired force-expires entries whose effective TTL has elapsed and
// returns how many were removed.
//
// The effective TTL is the stored TTL, unless override > 0 and it does not
// extend the entry's life: an entry stored with ttl=5s and checked at t+8s is
// removed even when override=90s. Entries stored with ttl=0 (never expire)
// are only removable via an override.
func (c *TTL) CleanupExpired(override time.Duration) int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		effective := e.ttl
		if override > 0 && (e.ttl == 0 || override < e.ttl) {
			effective = override
		}
		if effective <= 0 {
			continue
		}
		if now.Before(e.setAt.Add(effective)) {
			continue
		}
		// Would the stored TTL alone have expired it?
		storedExpired := e.ttl > 0 && !now.Before(e.setAt.Add(e.ttl))
		delete(c.entries, k)
		removed++
		c.expired++
		if !storedExpired {
			c.viaOverride++
		}
	}

	c.cleanups++
	c.lastCleanup = now
	return removed
}

func (c *TTL) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:               len(c.entries),
		Hits:               c.hits,
		Misses:             c.misses,
		CleanupInvocations: c.cleanups,
		ExpiredEntries:     c.expired,
		ExpiredViaOverride: c.viaOverride,
		LastCleanup:        c.lastCleanup,
	}
}
