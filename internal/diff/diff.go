// Package diff compares namespace snapshots so polling consumers can skip
// recomputing derived state for subjects that did not change.
//
// All functions are pure: inputs are never mutated, non-mapping inputs are
// treated as empty mappings, and for well-formed mappings no call path raises.
package diff

import (
	"reflect"
	"sort"
)

// Result describes the transformation of one flat key/value mapping into
// another. Key lists are sorted for deterministic output.
type Result struct {
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Modified []string `json:"modified"`
}

func (r Result) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Modified) > 0
}

// SubjectResult describes the transformation between two full snapshots
// (subject id -> fields).
type SubjectResult struct {
	Added    []string          `json:"added"`
	Removed  []string          `json:"removed"`
	Modified map[string]Result `json:"modified"`
}

func (r SubjectResult) HasChanges() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || len(r.Modified) > 0
}

// Data diffs a single flat mapping: keys absent in old are added, keys absent
// in new are removed, keys present in both with unequal values are modified.
func Data(old, new map[string]any) Result {
	var r Result
	for k, ov := range old {
		nv, ok := new[k]
		if !ok {
			r.Removed = append(r.Removed, k)
			continue
		}
		if !equal(ov, nv) {
			r.Modified = append(r.Modified, k)
		}
	}
	for k := range new {
		if _, ok := old[k]; !ok {
			r.Added = append(r.Added, k)
		}
	}
	sort.Strings(r.Added)
	sort.Strings(r.Removed)
	sort.Strings(r.Modified)
	return r
}

// Subject diffs one subject's fields. Inputs that are not mappings (legacy
// shapes, nil) are treated as empty mappings rather than rejected.
func Subject(old, new any) Result {
	return Data(asMap(old), asMap(new))
}

// Coordinator diffs two full snapshots across the set of subjects: subjects
// absent in old are added, absent in new removed, and subjects present in
// both recurse into a field-level diff (only recorded when it has changes).
func Coordinator(old, new map[string]any) SubjectResult {
	r := SubjectResult{Modified: map[string]Result{}}
	for id, ov := range old {
		nv, ok := new[id]
		if !ok {
			r.Removed = append(r.Removed, id)
			continue
		}
		if d := Subject(ov, nv); d.HasChanges() {
			r.Modified[id] = d
		}
	}
	for id := range new {
		if _, ok := old[id]; !ok {
			r.Added = append(r.Added, id)
		}
	}
	sort.Strings(r.Added)
	sort.Strings(r.Removed)
	return r
}

func asMap(v any) map[string]any {
	m, ok := v.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

func equal(a, b any) bool {
	// Snapshot values are JSON-compatible (maps, slices, scalars), so deep
	// equality is well-defined here.
	return reflect.DeepEqual(a, b)
}
