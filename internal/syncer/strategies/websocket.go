package strategies

import (
	"context"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
)

// WebSocket dials the target and pushes the state document as one JSON
// frame per sync. Connections are not pooled: sacred-time and scheduled
// syncs are rare enough that a dial per delivery keeps the strategy
// stateless, which the Strategy contract requires anyway.
type WebSocket struct {
	prio   int
	dialer *websocket.Dialer
}

func NewWebSocket(priority int) *WebSocket {
	return &WebSocket{
		prio:   priority,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

func (s *WebSocket) ID() string    { return "websocket" }
func (s *WebSocket) Priority() int { return s.prio }

func (s *WebSocket) CanHandle(t *syncer.Target) bool {
	if t == nil || t.Connection == nil {
		return false
	}
	m := strings.ToLower(t.Connection.Method)
	return (m == "websocket" || m == "ws" || m == "wss") && strings.TrimSpace(t.Connection.URL) != ""
}

func (s *WebSocket) Execute(ctx context.Context, t *syncer.Target, ev *event.Event) (map[string]any, error) {
	header := map[string][]string{}
	if t.Connection.Token != "" {
		header["Authorization"] = []string{"Bearer " + t.Connection.Token}
	}

	conn, _, err := s.dialer.DialContext(ctx, t.Connection.URL, header)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(buildPayload(t, ev)); err != nil {
		return nil, err
	}
	// Polite close; the write above is the delivery.
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return map[string]any{"url": t.Connection.URL}, nil
}
