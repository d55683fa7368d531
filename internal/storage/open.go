package storage

import (
	"context"
	"errors"
	"strings"

	logx "pawtrack/pkg/logx"
)

// Store is the raw namespace persistence primitive: whole-namespace blobs in,
// whole-namespace blobs out. Debouncing and caching live in Manager, not here.
type Store interface {
	LoadNamespace(ctx context.Context, ns string) (map[string]any, error)
	SaveNamespace(ctx context.Context, ns string, data map[string]any) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
