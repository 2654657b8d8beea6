package channels

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"
	"github.com/MKWorldWide/MKronoSphere/internal/event"
)

func testSignal(prio int) *broadcast.Signal {
	ev := event.New(event.CategoryCosmic, "equinox")
	ev.Priority = prio
	ev.Tags = []string{"celestial"}
	return broadcast.NewSignal(ev, []string{"ops"})
}

func TestConsoleBroadcastLine(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(3, &buf)
	if c.ID() != "console" || c.Priority() != 3 || !c.Available() {
		t.Fatalf("unexpected channel identity")
	}

	if err := c.Broadcast(context.Background(), testSignal(5)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	line := buf.String()
	if !strings.Contains(line, "cosmic") || !strings.Contains(line, "equinox") || !strings.Contains(line, "#celestial") {
		t.Fatalf("line = %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("line should end with newline")
	}
}

func TestFileBroadcastAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulse", "log.jsonl")
	f := NewFile(2, path)

	sig := testSignal(5)
	for i := 0; i < 2; i++ {
		if err := f.Broadcast(context.Background(), sig); err != nil {
			t.Fatalf("Broadcast: %v", err)
		}
	}

	fh, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer fh.Close()
	var lines int
	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		lines++
		var doc struct {
			PulseID string `json:"pulse_id"`
		}
		if err := json.Unmarshal(sc.Bytes(), &doc); err != nil || doc.PulseID != sig.ID {
			t.Fatalf("line %d: %v (%v)", lines, string(sc.Bytes()), err)
		}
	}
	if lines != 2 {
		t.Fatalf("lines = %d, want 2", lines)
	}
}

func TestFileWithoutPathUnavailable(t *testing.T) {
	f := NewFile(1, "  ")
	if f.Available() {
		t.Fatalf("empty path should be unavailable")
	}
}

func TestWebhookBroadcast(t *testing.T) {
	var gotAuth string
	var gotDoc struct {
		PulseID    string   `json:"pulse_id"`
		Recipients []string `json:"recipients"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotDoc)
	}))
	defer srv.Close()

	w := NewWebhook("", 4, srv.URL, "tok")
	if w.ID() != "webhook" {
		t.Fatalf("default id = %q", w.ID())
	}
	sig := testSignal(5)
	if err := w.Broadcast(context.Background(), sig); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if gotAuth != "Bearer tok" || gotDoc.PulseID != sig.ID || len(gotDoc.Recipients) != 1 {
		t.Fatalf("server saw auth=%q doc=%+v", gotAuth, gotDoc)
	}
}

func TestWebhookNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	w := NewWebhook("hook", 4, srv.URL, "")
	if err := w.Broadcast(context.Background(), testSignal(5)); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestSoundBellCount(t *testing.T) {
	cases := []struct {
		prio  int
		bells int
	}{
		{event.PriorityMedium, 1},
		{event.PriorityMedHigh, 2},
		{event.PriorityHigh, 3},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		s := NewSound(1, &buf)
		if err := s.Broadcast(context.Background(), testSignal(tc.prio)); err != nil {
			t.Fatalf("Broadcast: %v", err)
		}
		if got := strings.Count(buf.String(), "\a"); got != tc.bells {
			t.Errorf("priority %d: %d bells, want %d", tc.prio, got, tc.bells)
		}
	}
}

func TestTelegramRequiresCredentials(t *testing.T) {
	if _, err := NewTelegram(1, "", 42); err == nil {
		t.Fatalf("empty token should be rejected")
	}
	if _, err := NewTelegram(1, "tok", 0); err == nil {
		t.Fatalf("zero chat id should be rejected")
	}
}
