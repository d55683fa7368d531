package core

import (
	"context"
	"strings"
	"time"

	"pawtrack/internal/batcher"
	"pawtrack/internal/config"
	"pawtrack/internal/notify"
	"pawtrack/internal/reminder"
	"pawtrack/internal/storage"
	"pawtrack/internal/transport"
	logx "pawtrack/pkg/logx"
)

// Mapping helpers between the file config and component configs. Durations
// arrive pre-validated (config.Validate runs before commit), so parse errors
// here fall back to zero and the component default.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	s := cfg.Storage
	if s == nil {
		return storage.Config{}
	}
	return storage.Config{
		Driver:      s.Driver,
		Path:        s.Path,
		BusyTimeout: durationOf(s.BusyTimeout),
	}
}

func mapStorageManager(cfg *config.Config) storage.ManagerConfig {
	s := cfg.Storage
	if s == nil {
		return storage.ManagerConfig{}
	}
	return storage.ManagerConfig{
		Debounce: durationOf(s.SaveDebounce),
		CacheTTL: durationOf(s.CacheTTL),
	}
}

func mapBatcher(cfg *config.Config) batcher.Config {
	return batcher.Config{
		FlushThreshold: cfg.Engine.FlushThreshold,
		FlushInterval:  durationOf(cfg.Engine.FlushInterval),
		MaxHistory:     cfg.Engine.MaxHistory,
	}
}

func mapNotifier(cfg *config.Config) notify.Config {
	n := cfg.Notifier
	if n == nil {
		return notify.Config{}
	}
	return notify.Config{
		Enabled:       n.Enabled,
		PollInterval:  durationOf(n.PollInterval),
		MaxQueue:      n.QueueSize,
		RatePerMinute: n.RatePerMinute,
		QuietHours: notify.QuietHoursConfig{
			Enabled: n.QuietHours.Enabled,
			Start:   n.QuietHours.Start,
			End:     n.QuietHours.End,
		},
	}
}

func mapReminders(cfg *config.Config) reminder.Config {
	r := cfg.Reminders
	if r == nil {
		return reminder.Config{}
	}
	out := reminder.Config{
		Enabled:  r.Enabled,
		Timezone: r.Timezone,
		Entries:  make([]reminder.Entry, 0, len(r.Entries)),
	}
	for _, e := range r.Entries {
		out.Entries = append(out.Entries, reminder.Entry{
			Name:     e.Name,
			Schedule: e.Schedule,
			Subject:  e.Subject,
			Title:    e.Title,
			Message:  e.Message,
			Priority: e.Priority,
		})
	}
	return out
}

// cleanupSettings drive the periodic storage cache sweep.
type cleanupSettings struct {
	interval time.Duration
	maxAge   time.Duration
}

func mapCleanup(cfg *config.Config) cleanupSettings {
	s := cfg.Storage
	if s == nil {
		return cleanupSettings{}
	}
	return cleanupSettings{
		interval: durationOf(s.CleanupInterval),
		maxAge:   durationOf(s.CleanupMaxAge),
	}
}

func durationOf(raw string) time.Duration {
	d, err := config.ParseDurationField("", raw)
	if err != nil {
		return 0
	}
	return d
}

func telegramConfigured(cfg *config.Config) bool {
	return cfg.Telegram != nil && strings.TrimSpace(cfg.Telegram.Token) != ""
}

// logSender stands in when no Telegram transport is configured: deliveries
// land in the log instead of a chat.
func logSender(log logx.Logger) transport.Sender {
	return transport.SenderFunc(func(ctx context.Context, n transport.Notification) error {
		log.Info("notification (no transport)",
			logx.String("subject", n.Subject),
			logx.String("priority", string(n.Priority)),
			logx.String("title", n.Title),
			logx.String("message", n.Message))
		return nil
	})
}
