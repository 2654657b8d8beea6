package strategies

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
)

// File appends the state document as a JSON line to the target's path.
// The path comes from connection.url or, failing that, config["path"].
type File struct {
	prio int
	mu   sync.Mutex
}

func NewFile(priority int) *File {
	return &File{prio: priority}
}

func (s *File) ID() string    { return "file" }
func (s *File) Priority() int { return s.prio }

func (s *File) CanHandle(t *syncer.Target) bool {
	if t == nil {
		return false
	}
	if t.Connection != nil && strings.ToLower(t.Connection.Method) == "file" {
		return true
	}
	// Targets without a connection descriptor may still point at a file.
	_, ok := pathFromConfig(t)
	return t.Connection == nil && ok
}

func (s *File) Execute(ctx context.Context, t *syncer.Target, ev *event.Event) (map[string]any, error) {
	_ = ctx
	path := ""
	if t.Connection != nil {
		path = strings.TrimSpace(t.Connection.URL)
	}
	if path == "" {
		path, _ = pathFromConfig(t)
	}
	if path == "" {
		return nil, errors.New("file sync: no path in connection.url or config.path")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(buildPayload(t, ev)); err != nil {
		return nil, err
	}
	return map[string]any{"path": path}, nil
}

func pathFromConfig(t *syncer.Target) (string, bool) {
	if t.Config == nil {
		return "", false
	}
	p, ok := t.Config["path"].(string)
	if !ok || strings.TrimSpace(p) == "" {
		return "", false
	}
	return p, true
}
