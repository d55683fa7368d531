package cache

import (
	"testing"
	"time"
)

// fakeClock pins the cache's notion of now so TTL math is deterministic.
func fakeClock(c *TTL, at *time.Time) {
	c.now = func() time.Time { return *at }
}

func TestGetRespectsTTL(t *testing.T) {
	c := NewTTL()
	now := time.Now()
	fakeClock(c, &now)

	c.Set("k", "v", 5*time.Second)

	now = now.Add(4 * time.Second)
	if got := c.Get("k", nil); got != "v" {
		t.Fatalf("Get at t+4s = %v, want v", got)
	}

	now = now.Add(2 * time.Second)
	if got := c.Get("k", "fallback"); got != "fallback" {
		t.Fatalf("Get at t+6s = %v, want fallback", got)
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry still in storage (len=%d)", c.Len())
	}
}

func TestSetNormalizesNonPositiveTTL(t *testing.T) {
	c := NewTTL()
	now := time.Now()
	fakeClock(c, &now)

	c.Set("forever", 1, -10*time.Second)

	now = now.Add(24 * time.Hour)
	if got := c.Get("forever", nil); got != 1 {
		t.Fatalf("entry with normalized ttl=0 expired: got %v", got)
	}
}

func TestCleanupExpired(t *testing.T) {
	c := NewTTL()
	now := time.Now()
	fakeClock(c, &now)

	c.Set("short", 1, 5*time.Second)
	c.Set("long", 2, time.Hour)
	c.Set("pinned", 3, 0)

	now = now.Add(8 * time.Second)
	if n := c.CleanupExpired(0); n != 1 {
		t.Fatalf("CleanupExpired removed %d, want 1", n)
	}
	if !c.Has("long") || !c.Has("pinned") {
		t.Fatal("cleanup removed live entries")
	}

	st := c.Stats()
	if st.CleanupInvocations != 1 || st.ExpiredEntries != 1 || st.ExpiredViaOverride != 0 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.LastCleanup != now {
		t.Fatalf("LastCleanup = %v, want %v", st.LastCleanup, now)
	}
}

func TestCleanupOverrideNeverExtends(t *testing.T) {
	c := NewTTL()
	now := time.Now()
	fakeClock(c, &now)

	c.Set("short", 1, 5*time.Second)

	// An entry stored with ttl=5s and checked at t+8s must go even when the
	// override would allow 90s.
	now = now.Add(8 * time.Second)
	if n := c.CleanupExpired(90 * time.Second); n != 1 {
		t.Fatalf("CleanupExpired(90s) removed %d, want 1", n)
	}
	if st := c.Stats(); st.ExpiredViaOverride != 0 {
		t.Fatalf("ExpiredViaOverride = %d, want 0 (stored TTL expired it)", st.ExpiredViaOverride)
	}
}

func TestCleanupOverrideShortens(t *testing.T) {
	c := NewTTL()
	now := time.Now()
	fakeClock(c, &now)

	c.Set("long", 1, time.Hour)
	c.Set("pinned", 2, 0)

	now = now.Add(2 * time.Minute)
	if n := c.CleanupExpired(time.Minute); n != 2 {
		t.Fatalf("CleanupExpired(1m) removed %d, want 2", n)
	}
	if st := c.Stats(); st.ExpiredViaOverride != 2 {
		t.Fatalf("ExpiredViaOverride = %d, want 2", st.ExpiredViaOverride)
	}
}

func TestHitMissBookkeeping(t *testing.T) {
	c := NewTTL()
	c.Set("k", "v", time.Minute)

	_ = c.Get("k", nil)
	_ = c.Get("absent", nil)

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("hits=%d misses=%d, want 1/1", st.Hits, st.Misses)
	}
}
