package batcher

import (
	"time"

	"pawtrack/internal/store"
)

// Kind tags an event with its activity domain.
type Kind string

const (
	KindFeeding Kind = "feeding"
	KindHealth  Kind = "health"
	KindWalk    Kind = "walk"
)

// Known reports whether k is one of the three ingestable kinds.
func (k Kind) Known() bool {
	switch k {
	case KindFeeding, KindHealth, KindWalk:
		return true
	}
	return false
}

// Namespace maps an event kind to the namespace its folded effect lands in.
func (k Kind) Namespace() string {
	switch k {
	case KindFeeding:
		return store.NamespaceFeedings
	case KindHealth:
		return store.NamespaceHealth
	case KindWalk:
		return store.NamespaceWalks
	}
	return ""
}

// Event is the single ingestion unit. Immutable once queued: producers build
// it, the batcher consumes it exactly once, and only its folded effect is
// persisted.
//
// Walk payloads additionally carry "action" ("start", "end", or absent for
// progress) and "session_id".
type Event struct {
	Kind      Kind
	Subject   string
	Timestamp time.Time
	Payload   map[string]any
}

// Config tunes batching behavior.
type Config struct {
	// FlushThreshold flushes a namespace's buffer once it holds this many
	// events. <=0 uses the default.
	FlushThreshold int
	// FlushInterval is the background flush cadence. <=0 uses the default.
	FlushInterval time.Duration
	// MaxHistory caps per-subject history lists; <=0 keeps the store default.
	// Only consulted by Apply (the store is sized at construction).
	MaxHistory int
}

const (
	defaultFlushThreshold = 10
	defaultFlushInterval  = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = defaultFlushThreshold
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}
