package config

import (
	"reflect"
	"strings"

	logx "pawtrack/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging. Secrets (the Telegram token) are reported as
// set/unset, never by value.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs, logx.String("storage.driver", strings.TrimSpace(s.Driver)))
		}
	}

	if !reflect.DeepEqual(oldCfg.Engine, newCfg.Engine) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.Int("engine.max_history", newCfg.Engine.MaxHistory),
			logx.Int("engine.flush_threshold", newCfg.Engine.FlushThreshold),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Bool("notifier.quiet_hours", n.QuietHours.Enabled),
				logx.Int("notifier.rate_per_minute", n.RatePerMinute),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Reminders, newCfg.Reminders) {
		changed = append(changed, "reminders")
		if r := newCfg.Reminders; r != nil {
			attrs = append(attrs,
				logx.Bool("reminders.enabled", r.Enabled),
				logx.Int("reminders.entries", len(r.Entries)),
			)
		}
	}

	oldTok := oldCfg.Telegram != nil && strings.TrimSpace(oldCfg.Telegram.Token) != ""
	newTok := newCfg.Telegram != nil && strings.TrimSpace(newCfg.Telegram.Token) != ""
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		changed = append(changed, "telegram")
		attrs = append(attrs, logx.Bool("telegram.token_set", newTok))
		if oldTok != newTok {
			attrs = append(attrs, logx.Bool("telegram.token_changed", true))
		}
	}

	return changed, attrs
}
