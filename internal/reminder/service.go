// Package reminder runs scheduled care reminders. Each configured entry is a
// cron expression; when it fires, one notification is enqueued on the
// dispatcher. Firings never touch activity histories.
package reminder

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pawtrack/internal/transport"
	logx "pawtrack/pkg/logx"
)

// Enqueuer is the dispatcher-side contract. A nil error covers both "queued"
// and "suppressed"; the reminder does not care which.
type Enqueuer interface {
	Enqueue(n transport.Notification) error
}

type Config struct {
	Enabled bool
	// Timezone is an IANA name for cron evaluation; empty means local time.
	Timezone string
	Entries  []Entry
}

// Entry is one scheduled reminder.
type Entry struct {
	Name     string
	Schedule string // cron spec or @-descriptor (e.g. "@every 4h")
	Subject  string
	Title    string
	Message  string
	Priority string // "normal" (default) or "urgent"
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	sink Enqueuer
	cfg  Config

	parser cron.Parser
	c      *cron.Cron

	fired   uint64
	skipped int
}

func New(cfg Config, sink Enqueuer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:    log,
		sink:   sink,
		cfg:    cfg,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start registers all entries and starts the cron runner. Idempotent; a
// disabled config is a no-op.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	return s.startLocked()
}

func (s *Service) startLocked() error {
	loc, err := s.location()
	if err != nil {
		return err
	}
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	registered := 0
	s.skipped = 0
	for _, e := range s.cfg.Entries {
		e := e
		if strings.TrimSpace(e.Schedule) == "" || strings.TrimSpace(e.Subject) == "" {
			s.skipped++
			s.log.Warn("reminder entry incomplete; skipping", logx.String("name", e.Name))
			continue
		}
		if _, err := c.AddFunc(e.Schedule, func() { s.fire(e) }); err != nil {
			s.skipped++
			s.log.Warn("reminder schedule invalid; skipping",
				logx.String("name", e.Name), logx.String("schedule", e.Schedule), logx.Err(err))
			continue
		}
		registered++
	}

	c.Start()
	s.c = c
	s.log.Info("reminders started",
		logx.Int("entries", registered), logx.Int("skipped", s.skipped),
		logx.String("timezone", loc.String()))
	return nil
}

func (s *Service) location() (*time.Location, error) {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// Apply swaps in a new config. The cron runner is restarted so timezone and
// entry changes take effect together.
func (s *Service) Apply(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	running := s.c != nil
	if running {
		s.stopLocked(context.Background())
	}
	s.cfg = cfg
	if !cfg.Enabled {
		return nil
	}
	return s.startLocked()
}

// Stop halts the runner, waiting for an in-flight fire to finish (bounded by
// ctx).
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	done := s.c.Stop()
	s.c = nil
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("reminder stop timed out; abandoning in-flight job")
	}
}

func (s *Service) fire(e Entry) {
	n := transport.Notification{
		Subject:  e.Subject,
		Title:    e.Title,
		Message:  e.Message,
		Priority: priorityOf(e.Priority),
		Data: map[string]any{
			"reminder": e.Name,
			"schedule": e.Schedule,
		},
	}
	if n.Title == "" {
		n.Title = "Reminder"
	}

	err := s.sink.Enqueue(n)
	s.mu.Lock()
	if err == nil {
		s.fired++
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("reminder not enqueued",
			logx.String("name", e.Name), logx.String("subject", e.Subject), logx.Err(err))
		return
	}
	s.log.Debug("reminder fired",
		logx.String("name", e.Name), logx.String("subject", e.Subject))
}

// Fired reports how many reminders were handed to the dispatcher.
func (s *Service) Fired() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired
}

func priorityOf(s string) transport.Priority {
	if strings.EqualFold(strings.TrimSpace(s), string(transport.PriorityUrgent)) {
		return transport.PriorityUrgent
	}
	return transport.PriorityNormal
}
