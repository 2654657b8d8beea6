// Package strategies provides the built-in delivery strategies: http,
// file, and websocket. Custom delivery plugs in via syncer.FuncStrategy.
package strategies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
)

// payload is the state document every built-in strategy pushes.
type payload struct {
	TargetID string       `json:"target_id"`
	SyncedAt string       `json:"synced_at"`
	Event    *event.Event `json:"event,omitempty"`
}

func buildPayload(t *syncer.Target, ev *event.Event) payload {
	return payload{
		TargetID: t.ID,
		SyncedAt: time.Now().Format(time.RFC3339Nano),
		Event:    ev,
	}
}

// HTTP posts the state document to the target's URL.
type HTTP struct {
	prio int
	http *http.Client
}

func NewHTTP(priority int) *HTTP {
	return &HTTP{
		prio: priority,
		// Hard upper bound; the executor's timeout race is the real limit.
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

func (s *HTTP) ID() string    { return "http" }
func (s *HTTP) Priority() int { return s.prio }

func (s *HTTP) CanHandle(t *syncer.Target) bool {
	if t == nil || t.Connection == nil {
		return false
	}
	m := strings.ToLower(t.Connection.Method)
	return (m == "http" || m == "https") && strings.TrimSpace(t.Connection.URL) != ""
}

func (s *HTTP) Execute(ctx context.Context, t *syncer.Target, ev *event.Event) (map[string]any, error) {
	body, err := json.Marshal(buildPayload(t, ev))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.Connection.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Connection.Token != "" {
		req.Header.Set("Authorization", "Bearer "+t.Connection.Token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("http sync: unexpected status %d", resp.StatusCode)
	}
	return map[string]any{"status_code": resp.StatusCode}, nil
}
