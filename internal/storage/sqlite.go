//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) AppendSync(ctx context.Context, e SyncEntry) error {
	success := 0
	if e.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_history (at, target_id, success, error, attempts, took_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), e.TargetID, success, e.Error, e.Attempts, e.TookMS)
	return err
}

func (s *sqliteStore) AppendBroadcast(ctx context.Context, e BroadcastEntry) error {
	channels := "{}"
	if len(e.Channels) > 0 {
		if b, err := json.Marshal(e.Channels); err == nil {
			channels = string(b)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO broadcast_history (at, pulse_id, event_id, status, channels_json)
		 VALUES (?, ?, ?, ?, ?)`,
		e.At.UnixMilli(), e.PulseID, e.EventID, e.Status, channels)
	return err
}

func (s *sqliteStore) RecentSyncs(ctx context.Context, limit int) ([]SyncEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT at, target_id, success, error, attempts, took_ms
		 FROM sync_history ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncEntry
	for rows.Next() {
		var (
			at      int64
			e       SyncEntry
			success int
		)
		if err := rows.Scan(&at, &e.TargetID, &success, &e.Error, &e.Attempts, &e.TookMS); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(at)
		e.Success = success != 0
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Oldest first, matching the file backend.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
