// Package notify dispatches prioritized user notifications.
//
// Two FIFO queues (urgent, normal) are drained by one worker: urgent
// notifications go out immediately and always beat normal ones; normal
// notifications are sent one per poll interval. The gate (quiet hours,
// per-subject rate limit) runs at enqueue time. Delivery is at-most-once: a
// failed send is logged, never re-queued.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	rtsup "pawtrack/internal/runtime/supervisor"
	"pawtrack/internal/transport"
	logx "pawtrack/pkg/logx"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultMaxQueue     = 256
	sendTimeout         = 10 * time.Second
)

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender transport.Sender
	cfg    Config
	gate   *policy

	accepting bool
	urgent    []transport.Notification
	normal    []transport.Notification
	sup       *rtsup.Supervisor

	// wake lets Enqueue cut the worker's idle sleep short so urgent
	// notifications don't wait out a full poll interval.
	wake chan struct{}

	sent       uint64
	failed     uint64
	suppressed uint64
}

func New(cfg Config, sender transport.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	return &Service{
		log:    log,
		sender: sender,
		cfg:    cfg,
		gate:   newPolicy(cfg),
		// Intake is open from construction so producers may enqueue before
		// the worker starts; Stop is what closes it.
		accepting: true,
		wake:      make(chan struct{}, 1),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxQueue <= 0 {
		cfg.MaxQueue = defaultMaxQueue
	}
	return cfg
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates runtime-tunable settings (poll interval, quiet hours, rate
// limits). Queue contents are untouched.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.gate.apply(cfg)
}

// Start launches the dispatcher worker. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notify"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	s.mu.Unlock()

	sup.GoRestart("worker", s.workerLoop, rtsup.WithPublishFirstError(true))
}

// Stop blocks intake and cancels the worker. An in-flight send finishes;
// anything still queued is dropped (delivery is at-most-once anyway) with a
// log line so operators can see what was shed.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.accepting = false
	remaining := len(s.urgent) + len(s.normal)
	s.urgent = nil
	s.normal = nil
	s.mu.Unlock()

	if sup != nil {
		_ = sup.Stop(ctx)
	}
	if remaining > 0 {
		s.log.Info("notifications dropped at shutdown", logx.Int("count", remaining))
	}
}

// Enqueue gates and queues one notification. Suppressed notifications are
// dropped silently from the caller's perspective (nil error) but counted.
func (s *Service) Enqueue(n transport.Notification) error {
	s.mu.Lock()
	if !s.cfg.Enabled {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting {
		s.mu.Unlock()
		return ErrStopped
	}
	maxQueue := s.cfg.MaxQueue
	s.mu.Unlock()

	if !n.Priority.Valid() {
		n.Priority = transport.PriorityNormal
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.EnqueuedAt.IsZero() {
		n.EnqueuedAt = time.Now()
	}

	if ok, reason := s.gate.allow(n); !ok {
		s.mu.Lock()
		s.suppressed++
		s.mu.Unlock()
		s.log.Debug("notification suppressed",
			logx.String("subject", n.Subject),
			logx.String("priority", string(n.Priority)),
			logx.String("reason", reason))
		return nil
	}

	s.mu.Lock()
	q := &s.normal
	if n.Priority == transport.PriorityUrgent {
		q = &s.urgent
	}
	if len(*q) >= maxQueue {
		s.mu.Unlock()
		s.log.Warn("notification dropped; queue full",
			logx.String("subject", n.Subject), logx.String("priority", string(n.Priority)))
		return ErrQueueFull
	}
	*q = append(*q, n)
	s.mu.Unlock()

	// Nudge the worker out of its idle sleep.
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		QueuedUrgent: len(s.urgent),
		QueuedNormal: len(s.normal),
		Sent:         s.sent,
		Failed:       s.failed,
		Suppressed:   s.suppressed,
	}
}

// workerLoop implements the drain order contract: urgent queue fully, then
// at most one normal, then sleep the poll interval.
func (s *Service) workerLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for {
			n, ok := s.pop(&s.urgent)
			if !ok {
				break
			}
			s.send(ctx, n)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		if n, ok := s.pop(&s.normal); ok {
			s.send(ctx, n)
		}

		s.mu.Lock()
		interval := s.cfg.PollInterval
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		case <-time.After(interval):
		}
	}
}

func (s *Service) pop(q *[]transport.Notification) (transport.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(*q) == 0 {
		return transport.Notification{}, false
	}
	n := (*q)[0]
	*q = (*q)[1:]
	return n, true
}

func (s *Service) send(ctx context.Context, n transport.Notification) {
	if s.sender == nil {
		return
	}
	// Bound per-send call. Keep tight to avoid hanging the worker.
	callCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err := s.sender.Send(callCtx, n)
	cancel()

	s.mu.Lock()
	if err != nil {
		s.failed++
	} else {
		s.sent++
	}
	s.mu.Unlock()

	if err != nil {
		// At-most-once: log and move on, no requeue.
		s.log.Warn("notification send failed",
			logx.String("id", n.ID),
			logx.String("subject", n.Subject),
			logx.String("priority", string(n.Priority)),
			logx.Err(err))
		return
	}
	s.log.Debug("notification sent",
		logx.String("id", n.ID),
		logx.String("subject", n.Subject),
		logx.String("priority", string(n.Priority)))
}
