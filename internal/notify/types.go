package notify

import (
	"errors"
	"time"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Config controls the notification dispatcher.
type Config struct {
	Enabled bool
	// PollInterval is the idle sleep between queue checks and after each
	// normal-priority send. Urgent notifications are drained without sleeping.
	PollInterval time.Duration
	// MaxQueue caps each priority queue.
	MaxQueue int
	// RatePerMinute is the per-subject send budget. <=0 disables the limit.
	RatePerMinute int
	QuietHours    QuietHoursConfig
}

// QuietHoursConfig suppresses normal-priority notifications inside a daily
// window. Urgent notifications always pass.
type QuietHoursConfig struct {
	Enabled bool
	Start   string // "HH:MM"
	End     string // "HH:MM"; a window may wrap past midnight
}

// Stats is a point-in-time view of dispatcher bookkeeping.
type Stats struct {
	QueuedUrgent int    `json:"queued_urgent"`
	QueuedNormal int    `json:"queued_normal"`
	Sent         uint64 `json:"sent"`
	Failed       uint64 `json:"failed"`
	Suppressed   uint64 `json:"suppressed"`
}
