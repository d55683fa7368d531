// Package store holds the in-memory namespace store: one namespace per
// activity domain, mapping subject id to that subject's data.
//
// The store is the source of truth; the persistent storage layer only ever
// receives serialized snapshots of it. Mutation is expected from a single
// writer (the event batcher); the mutex exists so the store stays correct
// under Go's multi-threaded runtime.
package store

import (
	"sort"
	"sync"
	"time"
)

const (
	NamespaceWalks      = "walks"
	NamespaceFeedings   = "feedings"
	NamespaceHealth     = "health"
	NamespaceRoutes     = "routes"
	NamespaceStatistics = "statistics"
)

// Namespaces lists every known namespace, walks last so list namespaces are
// hydrated first on load.
func Namespaces() []string {
	return []string{
		NamespaceFeedings,
		NamespaceHealth,
		NamespaceRoutes,
		NamespaceStatistics,
		NamespaceWalks,
	}
}

func IsListNamespace(ns string) bool {
	switch ns {
	case NamespaceFeedings, NamespaceHealth, NamespaceRoutes, NamespaceStatistics:
		return true
	}
	return false
}

// WalkEntry is one subject's slice of the walks namespace: the in-progress
// session (if any) plus completed sessions, newest first.
type WalkEntry struct {
	Active   map[string]any   `json:"active"`
	History  []map[string]any `json:"history"`
	Metadata map[string]any   `json:"metadata"`
}

const DefaultMaxHistory = 100

type Store struct {
	mu         sync.Mutex
	maxHistory int

	// List namespaces: namespace -> subject -> records, newest first.
	lists map[string]map[string][]map[string]any
	// Walks namespace: subject -> session entry.
	walks map[string]*WalkEntry
}

func New(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	s := &Store{
		maxHistory: maxHistory,
		lists:      map[string]map[string][]map[string]any{},
		walks:      map[string]*WalkEntry{},
	}
	for _, ns := range Namespaces() {
		if IsListNamespace(ns) {
			s.lists[ns] = map[string][]map[string]any{}
		}
	}
	return s
}

func (s *Store) MaxHistory() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxHistory
}

// SetMaxHistory changes the history cap for future writes. Existing lists are
// not re-trimmed until their next update. <=0 restores the default.
func (s *Store) SetMaxHistory(n int) {
	if n <= 0 {
		n = DefaultMaxHistory
	}
	s.mu.Lock()
	s.maxHistory = n
	s.mu.Unlock()
}

// Prepend adds a record at the front of a list namespace (newest first) and
// trims the oldest entries beyond the history cap. Non-map records are
// normalized into the canonical shape first.
func (s *Store) Prepend(ns, subject string, rec any) {
	if !IsListNamespace(ns) || subject == "" {
		return
	}
	r := NormalizeRecord(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.lists[ns]
	list := append([]map[string]any{r}, m[subject]...)
	if len(list) > s.maxHistory {
		list = list[:s.maxHistory]
	}
	m[subject] = list
}

// Records returns a deep copy of one subject's records in a list namespace.
func (s *Store) Records(ns, subject string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !IsListNamespace(ns) {
		return nil
	}
	return copyRecords(s.lists[ns][subject])
}

// Walk returns a deep copy of one subject's walk entry, or ok=false when the
// subject has no walks data yet.
func (s *Store) Walk(subject string) (WalkEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.walks[subject]
	if !ok {
		return WalkEntry{}, false
	}
	out := WalkEntry{
		History:  copyRecords(e.History),
		Metadata: copyMap(e.Metadata),
	}
	// A nil Active means "no session in progress" and must survive the copy;
	// only materialize a map when one exists.
	if e.Active != nil {
		out.Active = copyMap(e.Active)
	}
	return out, true
}

// UpdateWalk runs fn against the subject's live walk entry under the store
// lock, creating the entry on first touch. After fn returns, history is
// re-sorted by timestamp descending and trimmed to the cap so index 0 is
// always the newest completed session regardless of batch arrival order.
func (s *Store) UpdateWalk(subject string, fn func(e *WalkEntry)) {
	if subject == "" || fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.walks[subject]
	if !ok {
		e = &WalkEntry{Metadata: map[string]any{}}
		s.walks[subject] = e
	}
	fn(e)
	sortHistoryDesc(e.History)
	if len(e.History) > s.maxHistory {
		e.History = e.History[:s.maxHistory]
	}
}

// Snapshot returns a deep-copied, JSON-compatible view of one namespace in
// its persisted shape. The copy is stable: callers may hand it to the diff
// engine or the storage layer while the store keeps mutating.
func (s *Store) Snapshot(ns string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[string]any{}
	if ns == NamespaceWalks {
		for subject, e := range s.walks {
			out[subject] = map[string]any{
				"active":   copyMapOrNil(e.Active),
				"history":  recordsAny(copyRecords(e.History)),
				"metadata": copyMap(e.Metadata),
			}
		}
		return out
	}
	for subject, list := range s.lists[ns] {
		out[subject] = recordsAny(copyRecords(list))
	}
	return out
}

// Load hydrates one namespace from persisted data, replacing its current
// contents. Unrecognized or legacy shapes are normalized on the way in; a
// record that cannot be made sense of is dropped rather than kept opaque.
func (s *Store) Load(ns string, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ns == NamespaceWalks {
		s.walks = map[string]*WalkEntry{}
		for subject, v := range data {
			m, ok := v.(map[string]any)
			if !ok {
				continue
			}
			e := &WalkEntry{
				Active:   normalizeOrNil(m["active"]),
				History:  normalizeList(m["history"], s.maxHistory),
				Metadata: NormalizeRecord(m["metadata"]),
			}
			sortHistoryDesc(e.History)
			s.walks[subject] = e
		}
		return
	}
	if !IsListNamespace(ns) {
		return
	}
	m := map[string][]map[string]any{}
	for subject, v := range data {
		m[subject] = normalizeList(v, s.maxHistory)
	}
	s.lists[ns] = m
}

// Subjects returns the sorted union of subject ids across all namespaces.
func (s *Store) Subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := map[string]struct{}{}
	for _, m := range s.lists {
		for subject := range m {
			set[subject] = struct{}{}
		}
	}
	for subject := range s.walks {
		set[subject] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for subject := range set {
		out = append(out, subject)
	}
	sort.Strings(out)
	return out
}

// sortHistoryDesc orders completed sessions newest first by their timestamp
// field. Records without a parseable timestamp sort last; the sort is stable
// so their relative order is preserved.
func sortHistoryDesc(history []map[string]any) {
	sort.SliceStable(history, func(i, j int) bool {
		ti, iok := recordTime(history[i])
		tj, jok := recordTime(history[j])
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return ti.After(tj)
	})
}

func recordTime(rec map[string]any) (time.Time, bool) {
	if rec == nil {
		return time.Time{}, false
	}
	return ParseTimestamp(rec["timestamp"])
}
