package batcher

import (
	"fmt"
	"strings"
	"time"

	"pawtrack/internal/eventbus"
	"pawtrack/internal/store"
	logx "pawtrack/pkg/logx"
)

// Walk session state machine: Idle -> Active -> Idle, keyed by the "action"
// field on the walk event. At most one active session per subject; a second
// start replaces the current one (last-start-wins), and an end reconciles
// whichever session id it references.

const (
	actionStart = "start"
	actionEnd   = "end"
)

// applyWalk folds one walk event into the subject's live entry and returns
// the bus signal to emit (empty for progress merges and ignored events).
func (s *Service) applyWalk(e *store.WalkEntry, ev Event) string {
	action := strings.ToLower(stringField(ev.Payload, "action"))
	sessionID := stringField(ev.Payload, "session_id")

	switch action {
	case actionStart:
		if e.Active != nil {
			// Last start wins; the displaced session is dropped without being
			// persisted, so log both ids.
			s.log.Warn("walk start while session active; replacing",
				logx.String("subject", ev.Subject),
				logx.String("old_session", stringField(e.Active, "session_id")),
				logx.String("new_session", sessionID))
		}
		e.Active = sessionRecord(ev, sessionID)
		return eventbus.SignalWalkStarted

	case actionEnd:
		completed := e.Active
		if completed == nil || stringField(completed, "session_id") != sessionID {
			if completed != nil {
				s.log.Warn("walk end references different session; discarding active",
					logx.String("subject", ev.Subject),
					logx.String("active_session", stringField(completed, "session_id")),
					logx.String("end_session", sessionID))
			}
			// No matching active session: synthesize a record from the end
			// event alone so the completion is never lost.
			completed = sessionRecord(ev, sessionID)
		} else {
			mergeFields(completed, ev)
		}
		// Whatever happened above, no active session survives an end event.
		e.Active = nil
		e.History = append([]map[string]any{completed}, e.History...)
		return eventbus.SignalWalkEnded

	default:
		// Progress update: only merged into a matching active session.
		if e.Active == nil || stringField(e.Active, "session_id") != sessionID {
			s.log.Debug("walk progress without matching session; ignored",
				logx.String("subject", ev.Subject),
				logx.String("session", sessionID))
			return ""
		}
		mergeFields(e.Active, ev)
		return ""
	}
}

// sessionRecord builds a fresh session record from an event's payload, with
// the event timestamp injected when the payload carries none.
func sessionRecord(ev Event, sessionID string) map[string]any {
	rec := store.NormalizeRecord(ev.Payload)
	delete(rec, "action")
	rec["session_id"] = sessionID
	if _, ok := rec["timestamp"]; !ok {
		rec["timestamp"] = ev.Timestamp.Format(time.RFC3339)
	}
	return rec
}

// mergeFields folds an event's payload into an existing session record,
// later fields winning. The state-machine keys are not merged.
func mergeFields(rec map[string]any, ev Event) {
	for k, v := range store.NormalizeRecord(ev.Payload) {
		if k == "action" || k == "session_id" {
			continue
		}
		rec[k] = v
	}
	if _, ok := ev.Payload["timestamp"]; !ok && !ev.Timestamp.IsZero() {
		rec["timestamp"] = ev.Timestamp.Format(time.RFC3339)
	}
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
