package notify

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pawtrack/internal/transport"
)

// policy is the should_send gate: quiet hours plus a per-subject token
// bucket. It is consulted at enqueue time so a suppressed notification never
// occupies queue space.
type policy struct {
	mu       sync.Mutex
	cfg      Config
	limiters map[string]*rate.Limiter

	// now is swappable for tests.
	now func() time.Time
}

func newPolicy(cfg Config) *policy {
	return &policy{
		cfg:      cfg,
		limiters: map[string]*rate.Limiter{},
		now:      time.Now,
	}
}

func (p *policy) apply(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	// Existing limiters keep their spent budget; only the refill rate moves.
	for _, lim := range p.limiters {
		lim.SetLimit(perMinute(cfg.RatePerMinute))
	}
	p.mu.Unlock()
}

// allow reports whether the notification may be enqueued, with a reason when
// it may not.
func (p *policy) allow(n transport.Notification) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.QuietHours.Enabled && n.Priority != transport.PriorityUrgent {
		if inWindow(p.now(), p.cfg.QuietHours.Start, p.cfg.QuietHours.End) {
			return false, "quiet hours"
		}
	}

	if p.cfg.RatePerMinute > 0 {
		lim, ok := p.limiters[n.Subject]
		if !ok {
			lim = rate.NewLimiter(perMinute(p.cfg.RatePerMinute), p.cfg.RatePerMinute)
			p.limiters[n.Subject] = lim
		}
		if !lim.Allow() {
			return false, fmt.Sprintf("subject rate limit (%d/min)", p.cfg.RatePerMinute)
		}
	}
	return true, ""
}

func perMinute(n int) rate.Limit {
	if n <= 0 {
		return rate.Inf
	}
	return rate.Every(time.Minute / time.Duration(n))
}

// inWindow reports whether t's local clock time falls inside [start, end).
// Windows may wrap past midnight (e.g. 22:00-07:00).
func inWindow(t time.Time, start, end string) bool {
	sh, sm, err1 := parseHHMM(start)
	eh, em, err2 := parseHHMM(end)
	if err1 != nil || err2 != nil {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	s := sh*60 + sm
	e := eh*60 + em
	if s == e {
		return false
	}
	if s < e {
		return cur >= s && cur < e
	}
	return cur >= s || cur < e
}

func parseHHMM(s string) (h, m int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid HH:MM: %q", s)
	}
	h, err = strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err = strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
