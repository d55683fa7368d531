package config

// Config is the full daemon configuration.
//
// The file may be JSON or YAML; YAML is coerced to JSON before decoding so
// both formats go through the same strict decoder.
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Storage controls the optional persistence layer.
	// If omitted, nothing is persisted and every namespace starts empty.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Engine controls the event batcher and activity histories.
	Engine EngineConfig `json:"engine"`

	// Notifier controls the notification dispatcher.
	// If omitted, no notifications are sent.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Reminders controls the cron-driven reminder producer.
	Reminders *RemindersConfig `json:"reminders,omitempty"`

	// Telegram configures the delivery transport. If omitted (or the token is
	// empty) notifications are logged instead of delivered.
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the persistence layer and its write-behind cache.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
//
// Example:
//
//	"storage": { "driver": "file", "path": "./pawtrack_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only

	// SaveDebounce coalesces rapid saves of the same namespace into one
	// write. "0s" falls back to the built-in default.
	SaveDebounce string `json:"save_debounce,omitempty"`

	// CacheTTL is how long loaded namespaces stay cached. "0s" falls back to
	// the built-in default.
	CacheTTL string `json:"cache_ttl,omitempty"`

	// CleanupInterval is how often expired cache entries are swept.
	// "0s" disables periodic cleanup.
	CleanupInterval string `json:"cleanup_interval,omitempty"`

	// CleanupMaxAge, when set, evicts cache entries older than this during a
	// sweep even if their own TTL has not elapsed yet. It can only shorten a
	// lifetime, never extend one.
	CleanupMaxAge string `json:"cleanup_max_age,omitempty"`
}

// EngineConfig controls event batching and history retention.
type EngineConfig struct {
	// MaxHistory caps each per-animal history list. 0 keeps the default.
	MaxHistory int `json:"max_history,omitempty"`

	// FlushThreshold flushes a namespace batch once it holds this many
	// events. 0 keeps the default.
	FlushThreshold int `json:"flush_threshold,omitempty"`

	// FlushInterval is a Go duration string; background flush cadence.
	FlushInterval string `json:"flush_interval,omitempty"`
}

// NotifierConfig controls the notification dispatcher.
//
// All durations are Go duration strings.
type NotifierConfig struct {
	Enabled       bool             `json:"enabled"`
	PollInterval  string           `json:"poll_interval,omitempty"`
	QueueSize     int              `json:"queue_size,omitempty"`
	RatePerMinute int              `json:"rate_per_minute,omitempty"`
	QuietHours    QuietHoursConfig `json:"quiet_hours,omitempty"`
}

// QuietHoursConfig suppresses normal-priority notifications inside a daily
// window ("HH:MM" local clock; the window may wrap past midnight).
type QuietHoursConfig struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start,omitempty"`
	End     string `json:"end,omitempty"`
}

// RemindersConfig drives the reminder scheduler.
type RemindersConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone for cron evaluation (IANA name, e.g. "Europe/Berlin").
	// Empty means the host's local timezone.
	Timezone string `json:"timezone,omitempty"`

	Entries []ReminderEntry `json:"entries,omitempty"`
}

// ReminderEntry is one scheduled reminder.
type ReminderEntry struct {
	Name string `json:"name"`

	// Schedule is a cron expression ("30 7 * * *") or a @-descriptor
	// ("@every 4h", "@daily").
	Schedule string `json:"schedule"`

	// Subject is the animal the reminder is about.
	Subject string `json:"subject"`

	Title   string `json:"title,omitempty"`
	Message string `json:"message"`

	// Priority is "normal" (default) or "urgent".
	Priority string `json:"priority,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
	// PollTimeout is a Go duration string for the bot long-poll.
	PollTimeout string `json:"poll_timeout,omitempty"`
}
