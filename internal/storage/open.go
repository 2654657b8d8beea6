package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// Store is the minimal history API used by the executors.
type Store interface {
	AppendSync(ctx context.Context, e SyncEntry) error
	AppendBroadcast(ctx context.Context, e BroadcastEntry) error
	RecentSyncs(ctx context.Context, limit int) ([]SyncEntry, error)
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
