package batcher

import (
	"context"
	"testing"
	"time"

	"pawtrack/internal/eventbus"
	"pawtrack/internal/storage"
	"pawtrack/internal/store"
	logx "pawtrack/pkg/logx"
)

func newTestService(t *testing.T, cfg Config) (*Service, *store.Store, *storage.Manager, <-chan eventbus.Event) {
	t.Helper()
	st := store.New(10)
	persist := storage.NewManager(nil, storage.ManagerConfig{}, logx.Nop())
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(64)
	t.Cleanup(unsub)
	svc := New(cfg, st, persist, bus, logx.Nop())
	return svc, st, persist, ch
}

func recvSignal(t *testing.T, ch <-chan eventbus.Event) eventbus.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bus signal")
		return eventbus.Event{}
	}
}

func TestIngestRejectsInvalidEvents(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newTestService(t, Config{})

	svc.Ingest(Event{Kind: "grooming", Subject: "buddy"})
	svc.Ingest(Event{Kind: KindFeeding, Subject: ""})

	if svc.Dropped() != 2 {
		t.Fatalf("dropped = %d, want 2", svc.Dropped())
	}
	if svc.Buffered() != 0 {
		t.Fatalf("buffered = %d, want 0", svc.Buffered())
	}
	svc.Drain()
	if recs := st.Records(store.NamespaceFeedings, "buddy"); len(recs) != 0 {
		t.Fatalf("invalid events reached the store: %v", recs)
	}
}

func TestFeedingFlushOnThreshold(t *testing.T) {
	t.Parallel()
	svc, st, _, ch := newTestService(t, Config{FlushThreshold: 2})

	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "breakfast"}})
	if svc.Buffered() != 1 {
		t.Fatalf("buffered = %d before threshold, want 1", svc.Buffered())
	}
	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "lunch"}})

	if svc.Buffered() != 0 {
		t.Fatalf("buffered = %d after threshold flush, want 0", svc.Buffered())
	}
	recs := st.Records(store.NamespaceFeedings, "buddy")
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	// Newest first, timestamp injected.
	if recs[0]["meal"] != "lunch" {
		t.Fatalf("records[0] = %v, want lunch first", recs[0])
	}
	if _, ok := recs[0]["timestamp"]; !ok {
		t.Fatal("timestamp not injected into payload")
	}

	sig := recvSignal(t, ch)
	if sig.Type != eventbus.SignalFeedingLogged {
		t.Fatalf("signal = %s, want %s", sig.Type, eventbus.SignalFeedingLogged)
	}
	data := sig.Data.(map[string]any)
	if data["subject_id"] != "buddy" {
		t.Fatalf("signal data = %v", data)
	}
}

func TestHealthEventsKeepExplicitTimestamp(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newTestService(t, Config{})

	svc.Ingest(Event{
		Kind:    KindHealth,
		Subject: "buddy",
		Payload: map[string]any{"weight": 12.5, "timestamp": "2026-08-01T09:00:00Z"},
	})
	svc.Drain()

	recs := st.Records(store.NamespaceHealth, "buddy")
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0]["timestamp"] != "2026-08-01T09:00:00Z" {
		t.Fatalf("explicit timestamp replaced: %v", recs[0])
	}
}

func TestDrainFlushesAllNamespaces(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newTestService(t, Config{FlushThreshold: 100})

	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "dinner"}})
	svc.Ingest(Event{Kind: KindHealth, Subject: "rex", Payload: map[string]any{"weight": 30.0}})
	if svc.Buffered() != 2 {
		t.Fatalf("buffered = %d, want 2", svc.Buffered())
	}

	svc.Drain()
	if svc.Buffered() != 0 {
		t.Fatalf("buffered = %d after drain, want 0", svc.Buffered())
	}
	if len(st.Records(store.NamespaceFeedings, "buddy")) != 1 {
		t.Fatal("feedings not flushed")
	}
	if len(st.Records(store.NamespaceHealth, "rex")) != 1 {
		t.Fatal("health not flushed")
	}
}

func TestFlushPersistsSnapshot(t *testing.T) {
	t.Parallel()
	svc, _, persist, _ := newTestService(t, Config{})

	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "dinner"}})
	svc.Drain()

	snap := persist.Load(context.Background(), store.NamespaceFeedings)
	list, ok := snap["buddy"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("persisted snapshot missing flushed data: %v", snap)
	}
}

func TestMalformedEventInBatchIsSkipped(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newTestService(t, Config{FlushThreshold: 100})

	// Walk event without a session id is malformed; the feeding after it must
	// still be processed.
	svc.Ingest(Event{Kind: KindWalk, Subject: "buddy", Payload: map[string]any{"action": "start"}})
	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "dinner"}})
	svc.Drain()

	if _, ok := st.Walk("buddy"); ok {
		t.Fatal("malformed walk event created a session entry")
	}
	if len(st.Records(store.NamespaceFeedings, "buddy")) != 1 {
		t.Fatal("batch aborted by malformed event")
	}
}

func TestStopForcesFinalDrain(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newTestService(t, Config{FlushThreshold: 100, FlushInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "dinner"}})

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	svc.Stop(stopCtx)

	if svc.Buffered() != 0 {
		t.Fatalf("buffered = %d after stop, want 0", svc.Buffered())
	}
	if len(st.Records(store.NamespaceFeedings, "buddy")) != 1 {
		t.Fatal("final drain did not run")
	}
}

func TestBackgroundFlushLoop(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newTestService(t, Config{FlushThreshold: 100, FlushInterval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop(context.Background())

	svc.Ingest(Event{Kind: KindHealth, Subject: "buddy", Payload: map[string]any{"weight": 12.0}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(st.Records(store.NamespaceHealth, "buddy")) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("interval flush never ran")
}

func TestApplyUpdatesLimits(t *testing.T) {
	t.Parallel()
	svc, st, _, _ := newTestService(t, Config{FlushThreshold: 100})

	svc.Apply(Config{FlushThreshold: 2, FlushInterval: time.Second, MaxHistory: 3})

	if st.MaxHistory() != 3 {
		t.Fatalf("max history = %d, want 3", st.MaxHistory())
	}
	if got := svc.flushInterval(); got != time.Second {
		t.Fatalf("flush interval = %v, want 1s", got)
	}

	// New threshold takes effect for subsequent ingests.
	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "a"}})
	svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": "b"}})
	if svc.Buffered() != 0 {
		t.Fatalf("buffered = %d, want 0 (threshold flush)", svc.Buffered())
	}

	// The new cap trims on the next write.
	for i := 0; i < 5; i++ {
		svc.Ingest(Event{Kind: KindFeeding, Subject: "buddy", Payload: map[string]any{"meal": i}})
	}
	svc.Drain()
	if n := len(st.Records(store.NamespaceFeedings, "buddy")); n != 3 {
		t.Fatalf("history length = %d, want 3", n)
	}
}
