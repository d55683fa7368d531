package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "pawtrack/pkg/logx"
)

// stubStore counts writes and can be made to fail.
type stubStore struct {
	mu    sync.Mutex
	saves map[string]int
	last  map[string]map[string]any
	fail  bool
	data  map[string]map[string]any
}

func newStubStore() *stubStore {
	return &stubStore{
		saves: map[string]int{},
		last:  map[string]map[string]any{},
		data:  map[string]map[string]any{},
	}
}

func (s *stubStore) LoadNamespace(ctx context.Context, ns string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("stub load failure")
	}
	if d, ok := s.data[ns]; ok {
		return d, nil
	}
	return map[string]any{}, nil
}

func (s *stubStore) SaveNamespace(ctx context.Context, ns string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("stub save failure")
	}
	s.saves[ns]++
	s.last[ns] = data
	return nil
}

func (s *stubStore) Close() error { return nil }

func (s *stubStore) saveCount(ns string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves[ns]
}

func (s *stubStore) lastSaved(ns string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[ns]
}

func TestManagerDebounceCoalesces(t *testing.T) {
	st := newStubStore()
	m := NewManager(st, ManagerConfig{Debounce: 20 * time.Millisecond}, logx.Nop())
	defer m.Close(context.Background())

	for i := 0; i < 10; i++ {
		m.Save("feedings", map[string]any{"buddy": i})
	}

	deadline := time.Now().Add(2 * time.Second)
	for st.saveCount("feedings") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := st.saveCount("feedings"); n != 1 {
		t.Fatalf("save count = %d, want 1 (coalesced)", n)
	}
	if got := st.lastSaved("feedings")["buddy"]; got != 9 {
		t.Fatalf("last write = %v, want latest snapshot (9)", got)
	}
}

func TestManagerFlushForcesPendingWrite(t *testing.T) {
	st := newStubStore()
	m := NewManager(st, ManagerConfig{Debounce: time.Hour}, logx.Nop())
	defer m.Close(context.Background())

	m.Save("walks", map[string]any{"buddy": map[string]any{"active": nil}})
	if n := st.saveCount("walks"); n != 0 {
		t.Fatalf("premature write before flush: %d", n)
	}

	m.Flush(context.Background())
	if n := st.saveCount("walks"); n != 1 {
		t.Fatalf("save count after flush = %d, want 1", n)
	}
	if m.PendingSaves() != 0 {
		t.Fatalf("pending = %d after flush, want 0", m.PendingSaves())
	}
}

func TestManagerSaveFailureStaysPending(t *testing.T) {
	st := newStubStore()
	st.fail = true
	m := NewManager(st, ManagerConfig{Debounce: time.Hour}, logx.Nop())

	m.Save("health", map[string]any{"buddy": 1})
	m.Flush(context.Background())
	if m.PendingSaves() != 1 {
		t.Fatalf("pending = %d after failed flush, want 1", m.PendingSaves())
	}

	// Backend recovers; next flush drains the retained snapshot.
	st.mu.Lock()
	st.fail = false
	st.mu.Unlock()
	m.Flush(context.Background())
	if n := st.saveCount("health"); n != 1 {
		t.Fatalf("save count after recovery = %d, want 1", n)
	}
	_ = m.Close(context.Background())
}

func TestManagerLoadFailureDegradesToEmpty(t *testing.T) {
	st := newStubStore()
	st.fail = true
	m := NewManager(st, ManagerConfig{}, logx.Nop())
	defer m.Close(context.Background())

	out := m.Load(context.Background(), "feedings")
	if out == nil || len(out) != 0 {
		t.Fatalf("Load on failure = %v, want empty namespace", out)
	}
}

func TestManagerLoadServesFromCache(t *testing.T) {
	st := newStubStore()
	st.data["feedings"] = map[string]any{"buddy": "cached"}
	m := NewManager(st, ManagerConfig{CacheTTL: time.Minute}, logx.Nop())
	defer m.Close(context.Background())

	ctx := context.Background()
	first := m.Load(ctx, "feedings")
	if first["buddy"] != "cached" {
		t.Fatalf("first load = %v", first)
	}

	// Backend changes underneath; the cached value is served until TTL expiry.
	st.mu.Lock()
	st.data["feedings"] = map[string]any{"buddy": "newer"}
	st.mu.Unlock()
	second := m.Load(ctx, "feedings")
	if second["buddy"] != "cached" {
		t.Fatalf("second load bypassed cache: %v", second)
	}
	if st := m.CacheStats(); st.Hits == 0 {
		t.Fatalf("expected cache hit, stats: %+v", st)
	}
}

func TestManagerDisabledStorage(t *testing.T) {
	m := NewManager(nil, ManagerConfig{}, logx.Nop())
	defer m.Close(context.Background())

	if m.Persistent() {
		t.Fatal("nil store should not be persistent")
	}
	m.Save("walks", map[string]any{"buddy": 1})
	out := m.Load(context.Background(), "walks")
	if out["buddy"] != 1 {
		t.Fatalf("disabled storage should still serve the cached snapshot, got %v", out)
	}
}
