// Package batcher is the single ingestion point for typed telemetry events.
//
// Events are buffered per namespace and flushed as a batch when a size
// threshold is reached, on a background interval, before reads (Drain), and
// once more during shutdown. Flushing folds the batch into the namespace
// store, schedules a debounced save, and emits one domain signal per
// processed event.
package batcher

import (
	"context"
	"sync"
	"time"

	"pawtrack/internal/eventbus"
	rtsup "pawtrack/internal/runtime/supervisor"
	"pawtrack/internal/storage"
	"pawtrack/internal/store"
	logx "pawtrack/pkg/logx"
)

type Service struct {
	log     logx.Logger
	cfg     Config
	store   *store.Store
	persist *storage.Manager
	bus     eventbus.Bus

	mu  sync.Mutex
	buf map[string][]Event
	sup *rtsup.Supervisor

	// dropped counts events rejected at the ingestion boundary.
	dropped uint64
}

func New(cfg Config, st *store.Store, persist *storage.Manager, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:     log,
		cfg:     cfg.withDefaults(),
		store:   st,
		persist: persist,
		bus:     bus,
		buf:     map[string][]Event{},
	}
}

// Start launches the background flush loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "batcher"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("flush", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(s.flushInterval()):
				s.Drain()
			}
		}
	}, rtsup.WithPublishFirstError(true))
}

// Apply updates batching limits at runtime. Buffered events are untouched;
// the new threshold and interval take effect from the next event and flush
// cycle.
func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.store.SetMaxHistory(cfg.MaxHistory)
}

func (s *Service) flushInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.FlushInterval
}

// Stop cancels the flush loop and forces one final drain so the namespace
// store and persistent storage agree before teardown.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()

	if sup != nil {
		_ = sup.Stop(ctx)
	}
	s.Drain()
	if s.persist != nil {
		s.persist.Flush(ctx)
	}
}

// Ingest validates and buffers one event. Invalid events are dropped with a
// logged reason; ingestion never surfaces an error to the producer.
func (s *Service) Ingest(ev Event) {
	if !ev.Kind.Known() {
		s.drop("unknown event kind", ev)
		return
	}
	if ev.Subject == "" {
		s.drop("empty subject id", ev)
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	ns := ev.Kind.Namespace()

	s.mu.Lock()
	s.buf[ns] = append(s.buf[ns], ev)
	full := len(s.buf[ns]) >= s.cfg.FlushThreshold
	s.mu.Unlock()

	if full {
		s.flushNamespace(ns)
	}
}

// Drain flushes every buffered namespace. Callers that are about to read or
// save a namespace use this so derived views never trail the buffer.
func (s *Service) Drain() {
	s.mu.Lock()
	namespaces := make([]string, 0, len(s.buf))
	for ns, events := range s.buf {
		if len(events) > 0 {
			namespaces = append(namespaces, ns)
		}
	}
	s.mu.Unlock()

	for _, ns := range namespaces {
		s.flushNamespace(ns)
	}
}

// Buffered returns the number of events currently waiting in all buffers.
func (s *Service) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, events := range s.buf {
		n += len(events)
	}
	return n
}

func (s *Service) flushNamespace(ns string) {
	s.mu.Lock()
	batch := s.buf[ns]
	delete(s.buf, ns)
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	// Events are folded in arrival order; grouping by subject falls out of
	// sequential processing because each event touches only its own subject.
	var signals []eventbus.Event
	for _, ev := range batch {
		if sig, data, ok := s.applyEvent(ns, ev); ok && sig != "" {
			signals = append(signals, eventbus.Event{Type: sig, Data: data})
		}
	}

	// In-memory state is the source of truth; the save is debounced and
	// retried by the storage manager on failure.
	if s.persist != nil {
		s.persist.Save(ns, s.store.Snapshot(ns))
	}

	if s.bus != nil {
		for _, sig := range signals {
			s.bus.Publish(sig)
		}
	}
	s.log.Debug("batch flushed", logx.String("namespace", ns), logx.Int("events", len(batch)))
}

// applyEvent folds one event into the store. A malformed event is skipped
// with a diagnostic without aborting the rest of the batch.
func (s *Service) applyEvent(ns string, ev Event) (signal string, data map[string]any, ok bool) {
	switch ev.Kind {
	case KindFeeding, KindHealth:
		rec := store.NormalizeRecord(ev.Payload)
		if _, present := rec["timestamp"]; !present {
			rec["timestamp"] = ev.Timestamp.Format(time.RFC3339)
		}
		s.store.Prepend(ns, ev.Subject, rec)
		sig := eventbus.SignalFeedingLogged
		if ev.Kind == KindHealth {
			sig = eventbus.SignalHealthLogged
		}
		return sig, signalData(ev.Subject, "", rec), true

	case KindWalk:
		sessionID := stringField(ev.Payload, "session_id")
		if sessionID == "" {
			s.log.Warn("walk event without session id; skipped",
				logx.String("subject", ev.Subject))
			return "", nil, false
		}
		var sig string
		s.store.UpdateWalk(ev.Subject, func(e *store.WalkEntry) {
			sig = s.applyWalk(e, ev)
		})
		return sig, signalData(ev.Subject, sessionID, nil), true
	}
	return "", nil, false
}

func (s *Service) drop(reason string, ev Event) {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
	s.log.Warn("event dropped", logx.String("reason", reason),
		logx.String("kind", string(ev.Kind)), logx.String("subject", ev.Subject))
}

// Dropped returns how many events were rejected at the ingestion boundary.
func (s *Service) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func signalData(subject, sessionID string, payload map[string]any) map[string]any {
	data := map[string]any{"subject_id": subject}
	if sessionID != "" {
		data["session_id"] = sessionID
	}
	if payload != nil {
		data["payload"] = payload
	}
	return data
}
