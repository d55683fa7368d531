package store

import (
	"fmt"
	"time"
)

// NormalizeRecord coerces any record shape into the canonical JSON-compatible
// map form. Earlier versions of the add-on persisted typed records and bare
// scalars mixed with plain mappings; this is the single conversion point, so
// downstream code only ever sees map[string]any.
func NormalizeRecord(v any) map[string]any {
	switch r := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return copyMap(r)
	case map[any]any:
		// YAML decoders produce interface-keyed maps.
		out := make(map[string]any, len(r))
		for k, val := range r {
			out[fmt.Sprint(k)] = copyValue(val)
		}
		return out
	default:
		return map[string]any{"value": v}
	}
}

func normalizeOrNil(v any) map[string]any {
	if v == nil {
		return nil
	}
	return NormalizeRecord(v)
}

func normalizeList(v any, max int) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		if typed, ok2 := v.([]map[string]any); ok2 {
			out := copyRecords(typed)
			if max > 0 && len(out) > max {
				out = out[:max]
			}
			return out
		}
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		out = append(out, NormalizeRecord(it))
	}
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// ParseTimestamp accepts the timestamp shapes that show up in event payloads
// and persisted records: RFC3339 strings (with or without sub-seconds),
// time.Time values, and unix seconds.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts, true
			}
		}
		return time.Time{}, false
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		sec := int64(t)
		nsec := int64((t - float64(sec)) * 1e9)
		return time.Unix(sec, nsec), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.Unix(t, 0), true
	case int:
		return ParseTimestamp(int64(t))
	default:
		return time.Time{}, false
	}
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMap(t)
	case map[any]any:
		return NormalizeRecord(t)
	case []any:
		out := make([]any, len(t))
		for i, it := range t {
			out[i] = copyValue(it)
		}
		return out
	case []map[string]any:
		return recordsAny(copyRecords(t))
	default:
		// Scalars are immutable.
		return v
	}
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyMapOrNil(m map[string]any) any {
	if m == nil {
		return nil
	}
	return copyMap(m)
}

func copyRecords(list []map[string]any) []map[string]any {
	if list == nil {
		return nil
	}
	out := make([]map[string]any, len(list))
	for i, r := range list {
		out[i] = copyMap(r)
	}
	return out
}

func recordsAny(list []map[string]any) []any {
	out := make([]any, len(list))
	for i, r := range list {
		out[i] = r
	}
	return out
}
