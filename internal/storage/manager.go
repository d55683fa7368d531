package storage

import (
	"context"
	"sync"
	"time"

	"pawtrack/internal/cache"
	logx "pawtrack/pkg/logx"
)

// ManagerConfig tunes the debounced save path and the read cache.
type ManagerConfig struct {
	// Debounce is the quiet window that coalesces rapid Save calls into one
	// write per namespace (last write wins within the window).
	Debounce time.Duration
	// CacheTTL bounds how long a loaded/saved namespace is served from memory
	// before the next Load goes back to the driver.
	CacheTTL time.Duration
}

const (
	defaultDebounce = 500 * time.Millisecond
	defaultCacheTTL = 5 * time.Minute
)

// Manager wraps the raw persistence primitive with the two behaviors every
// caller wants: a TTL read cache and debounced, coalesced writes.
//
// Save never fails from the caller's perspective: the in-memory namespace
// store is authoritative and a failed write stays pending for the next
// debounce cycle. Storage is eventually consistent with memory.
type Manager struct {
	log   logx.Logger
	store Store // nil when storage is disabled
	cache *cache.TTL

	debounce time.Duration
	cacheTTL time.Duration

	mu      sync.Mutex
	pending map[string]map[string]any
	timer   *time.Timer
	closed  bool
}

func NewManager(store Store, cfg ManagerConfig, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Manager{
		log:      log,
		store:    store,
		cache:    cache.NewTTL(),
		debounce: cfg.Debounce,
		cacheTTL: cfg.CacheTTL,
		pending:  map[string]map[string]any{},
	}
}

// Persistent reports whether a durable backend is configured.
func (m *Manager) Persistent() bool { return m != nil && m.store != nil }

// Load returns the namespace contents, serving from cache when fresh. A
// missing or corrupt backing file degrades to an empty namespace with a log
// line; callers never see a load error.
func (m *Manager) Load(ctx context.Context, ns string) map[string]any {
	if v := m.cache.Get(ns, nil); v != nil {
		if data, ok := v.(map[string]any); ok {
			return data
		}
	}
	if m.store == nil {
		return map[string]any{}
	}

	data, err := m.store.LoadNamespace(ctx, ns)
	if err != nil {
		m.log.Warn("namespace load failed; starting empty", logx.String("namespace", ns), logx.Err(err))
		return map[string]any{}
	}
	m.cache.Set(ns, data, m.cacheTTL)
	return data
}

// Save schedules a debounced write of the namespace snapshot. The latest
// snapshot within the window wins; the cache is refreshed immediately so
// reads between Save and the physical write stay consistent.
func (m *Manager) Save(ns string, data map[string]any) {
	if ns == "" {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	m.cache.Set(ns, data, m.cacheTTL)
	if m.store == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.pending[ns] = data
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.debounce, m.flushTimer)
}

func (m *Manager) flushTimer() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.Flush(ctx)
}

// Flush writes all pending namespaces now. Failed writes are kept pending
// (unless superseded) and retried on the next debounce cycle.
func (m *Manager) Flush(ctx context.Context) {
	if m.store == nil {
		return
	}

	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	batch := m.pending
	m.pending = map[string]map[string]any{}
	m.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var failed []string
	for ns, data := range batch {
		if err := m.store.SaveNamespace(ctx, ns, data); err != nil {
			m.log.Warn("namespace save failed; will retry", logx.String("namespace", ns), logx.Err(err))
			failed = append(failed, ns)
			continue
		}
		m.log.Debug("namespace saved", logx.String("namespace", ns), logx.Int("subjects", len(data)))
	}
	if len(failed) == 0 {
		return
	}

	// Re-queue failures unless a newer snapshot arrived meanwhile.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	requeued := false
	for _, ns := range failed {
		if _, ok := m.pending[ns]; !ok {
			m.pending[ns] = batch[ns]
			requeued = true
		}
	}
	if requeued && m.timer == nil {
		m.timer = time.AfterFunc(m.debounce, m.flushTimer)
	}
}

// PendingSaves returns how many namespaces are waiting for a debounced write.
func (m *Manager) PendingSaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// CleanupCache force-expires cache entries by effective TTL; see cache.TTL.
func (m *Manager) CleanupCache(override time.Duration) int {
	n := m.cache.CleanupExpired(override)
	if n > 0 {
		m.log.Debug("cache cleanup", logx.Int("expired", n), logx.Duration("override", override))
	}
	return n
}

func (m *Manager) CacheStats() cache.Stats { return m.cache.Stats() }

// Close flushes pending writes and closes the driver. Further Save calls are
// dropped.
func (m *Manager) Close(ctx context.Context) error {
	m.Flush(ctx)

	m.mu.Lock()
	m.closed = true
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	return m.store.Close()
}
