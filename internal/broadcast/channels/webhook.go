package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"
)

// Webhook POSTs the signal as JSON to an HTTP endpoint. Multiple webhook
// channels can coexist under distinct ids.
type Webhook struct {
	id    string
	prio  int
	url   string
	token string
	http  *http.Client
}

func NewWebhook(id string, priority int, url, token string) *Webhook {
	if id == "" {
		id = "webhook"
	}
	return &Webhook{
		id:    id,
		prio:  priority,
		url:   url,
		token: token,
		// The executor owns the broadcast timeout; this is a hard upper
		// bound so a leaked loser goroutine cannot hang forever.
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (w *Webhook) ID() string      { return w.id }
func (w *Webhook) Priority() int   { return w.prio }
func (w *Webhook) Available() bool { return strings.TrimSpace(w.url) != "" }

func (w *Webhook) Broadcast(ctx context.Context, sig *broadcast.Signal) error {
	body, err := json.Marshal(struct {
		PulseID    string   `json:"pulse_id"`
		Timestamp  string   `json:"timestamp"`
		Recipients []string `json:"recipients,omitempty"`
		Event      any      `json:"event"`
	}{
		PulseID:    sig.ID,
		Timestamp:  sig.Timestamp.Format(time.RFC3339Nano),
		Recipients: sig.Recipients,
		Event:      sig.Event,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s: unexpected status %d", w.id, resp.StatusCode)
	}
	return nil
}
