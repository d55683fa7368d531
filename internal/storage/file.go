package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "pawtrack/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Layout: one <namespace>.json per namespace under the configured directory.
// Writes go through a temp file + rename so a crash mid-save never leaves a
// half-written namespace behind.
type fileStore struct {
	log logx.Logger

	mu  sync.Mutex
	dir string
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &fileStore{log: log, dir: dir}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) path(ns string) string {
	// Namespace names are internal constants, but keep the base-name guard so
	// a bad value can never escape the storage directory.
	return filepath.Join(s.dir, filepath.Base(ns)+".json")
}

func (s *fileStore) LoadNamespace(ctx context.Context, ns string) (map[string]any, error) {
	_ = ctx
	if ns == "" {
		return map[string]any{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path(ns))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

func (s *fileStore) SaveNamespace(ctx context.Context, ns string, data map[string]any) error {
	_ = ctx
	if ns == "" {
		return nil
	}
	if data == nil {
		data = map[string]any{}
	}

	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(ns)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
