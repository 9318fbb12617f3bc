package notify

import (
	"log/slog"
	"sync"
	"time"
)

// MCPSender abstracts the mcp-go server notification methods.
type MCPSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
	SendNotificationToAllClients(method string, params map[string]any)
}

// MCPNotifier pushes route outcomes to MCP clients as log messages.
type MCPNotifier struct {
	sender   MCPSender
	debounce time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time // target → last delivered notification
}

// NewMCPNotifier creates an MCPNotifier. Delivered routes are debounced per
// target; undelivered and untargeted routes are always sent immediately.
func NewMCPNotifier(sender MCPSender, debounce time.Duration) *MCPNotifier {
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	return &MCPNotifier{
		sender:   sender,
		debounce: debounce,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Notify sends an MCP notification for the given event.
func (n *MCPNotifier) Notify(event Event) {
	switch event.Type {
	case TypeDelivered:
		// A session asked for this route and waits for its outcome.
		if event.MCPSessionID == "" && n.debounced(event.Target) {
			return
		}
		n.sendMessage(event, "info")
	case TypeUndelivered:
		n.sendMessage(event, "warning")
	case TypeUntargeted:
		n.sendMessage(event, "error")
	default:
		slog.Debug("mcp notifier: unknown event type", "type", event.Type)
	}
}

// debounced reports whether a delivered notification for target was sent
// within the debounce interval, and records this one otherwise.
func (n *MCPNotifier) debounced(target string) bool {
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()

	if last, ok := n.lastSent[target]; ok && now.Sub(last) < n.debounce {
		return true
	}

	for t, last := range n.lastSent {
		if now.Sub(last) >= n.debounce {
			delete(n.lastSent, t)
		}
	}
	n.lastSent[target] = now
	return false
}

func (n *MCPNotifier) sendMessage(event Event, level string) {
	params := map[string]any{
		"level":  level,
		"logger": "switchboard",
		"data": map[string]any{
			"type":       event.Type,
			"event_id":   event.EventID,
			"event_type": event.EventType,
			"action":     event.Action,
			"target":     event.Target,
			"recipients": event.Recipients(),
			"message":    event.Message,
		},
	}

	n.send(event.MCPSessionID, "notifications/message", params)
}

// send dispatches to a specific client or broadcasts.
func (n *MCPNotifier) send(mcpSessionID, method string, params map[string]any) {
	if mcpSessionID != "" {
		if err := n.sender.SendNotificationToSpecificClient(mcpSessionID, method, params); err != nil {
			slog.Debug("mcp notification failed, falling back to broadcast",
				"session_id", mcpSessionID,
				"method", method,
				"error", err)
			n.sender.SendNotificationToAllClients(method, params)
		}
		return
	}
	n.sender.SendNotificationToAllClients(method, params)
}
