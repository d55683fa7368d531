// Package storage persists namespace snapshots durably.
//
// It is split in two layers:
//   - Store: the raw driver primitive (file or sqlite), blob in / blob out
//   - Manager: debounced writes + TTL read cache on top of a Store
package storage
