package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.sync.jsonl      (append-only JSON Lines)
//   - <prefix>.broadcast.jsonl (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	syncPath  string
	syncFile  *os.File
	bcastFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	syncPath := prefix + ".sync.jsonl"
	bcastPath := prefix + ".broadcast.jsonl"

	sf, err := os.OpenFile(syncPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	bf, err := os.OpenFile(bcastPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = sf.Close()
		return nil, err
	}

	return &fileStore{log: log, syncPath: syncPath, syncFile: sf, bcastFile: bf}, nil
}

func (s *fileStore) AppendSync(ctx context.Context, e SyncEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncFile == nil {
		return errors.New("sync history file closed")
	}
	return json.NewEncoder(s.syncFile).Encode(e)
}

func (s *fileStore) AppendBroadcast(ctx context.Context, e BroadcastEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bcastFile == nil {
		return errors.New("broadcast history file closed")
	}
	return json.NewEncoder(s.bcastFile).Encode(e)
}

// RecentSyncs scans the JSONL file and returns the newest entries, oldest
// first. The file backend favors simplicity over seek tricks; sqlite is
// the driver for large histories.
func (s *fileStore) RecentSyncs(ctx context.Context, limit int) ([]SyncEntry, error) {
	_ = ctx
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	path := s.syncPath
	s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []SyncEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var e SyncEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			// Skip torn/corrupt lines rather than failing the whole read.
			continue
		}
		out = append(out, e)
		if len(out) > limit {
			out = out[1:]
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.syncFile != nil {
		err1 = s.syncFile.Close()
		s.syncFile = nil
	}
	if s.bcastFile != nil {
		err2 = s.bcastFile.Close()
		s.bcastFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}
