package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate checks everything that can be checked without touching I/O. It is
// used both at startup and as the Watch() validator, so a broken edit never
// replaces a working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
		}
		for path, raw := range map[string]string{
			"storage.busy_timeout":     cfg.Storage.BusyTimeout,
			"storage.save_debounce":    cfg.Storage.SaveDebounce,
			"storage.cache_ttl":        cfg.Storage.CacheTTL,
			"storage.cleanup_interval": cfg.Storage.CleanupInterval,
			"storage.cleanup_max_age":  cfg.Storage.CleanupMaxAge,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				return err
			}
		}
	}

	if _, err := ParseDurationField("engine.flush_interval", cfg.Engine.FlushInterval); err != nil {
		return err
	}
	if cfg.Engine.MaxHistory < 0 {
		return fmt.Errorf("engine.max_history: must be >= 0")
	}

	if n := cfg.Notifier; n != nil {
		if _, err := ParseDurationField("notifier.poll_interval", n.PollInterval); err != nil {
			return err
		}
		if n.QuietHours.Enabled {
			for path, v := range map[string]string{
				"notifier.quiet_hours.start": n.QuietHours.Start,
				"notifier.quiet_hours.end":   n.QuietHours.End,
			} {
				if err := checkHHMM(path, v); err != nil {
					return err
				}
			}
		}
	}

	if r := cfg.Reminders; r != nil && r.Enabled {
		if tz := strings.TrimSpace(r.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("reminders.timezone: %w", err)
			}
		}
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		for i, e := range r.Entries {
			where := fmt.Sprintf("reminders.entries[%d]", i)
			if strings.TrimSpace(e.Subject) == "" {
				return fmt.Errorf("%s: subject is required", where)
			}
			if strings.TrimSpace(e.Message) == "" {
				return fmt.Errorf("%s: message is required", where)
			}
			if _, err := parser.Parse(e.Schedule); err != nil {
				return fmt.Errorf("%s: invalid schedule %q: %w", where, e.Schedule, err)
			}
			switch strings.ToLower(strings.TrimSpace(e.Priority)) {
			case "", "normal", "urgent":
			default:
				return fmt.Errorf("%s: invalid priority %q", where, e.Priority)
			}
		}
	}

	if t := cfg.Telegram; t != nil {
		if _, err := ParseDurationField("telegram.poll_timeout", t.PollTimeout); err != nil {
			return err
		}
		if strings.TrimSpace(t.Token) != "" && t.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id: required when a token is set")
		}
	}

	return nil
}

func checkHHMM(path, v string) error {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d:%d", &h, &m); err != nil {
		return fmt.Errorf("%s: invalid HH:MM %q", path, v)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("%s: invalid HH:MM %q", path, v)
	}
	return nil
}
