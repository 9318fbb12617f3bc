package notify

import "time"

// Route outcome types.
const (
	TypeDelivered   = "route.delivered"
	TypeUndelivered = "route.undelivered"
	TypeUntargeted  = "route.untargeted"
)

// Event represents the outcome of routing one domain event.
type Event struct {
	Type      string // TypeDelivered, TypeUndelivered, TypeUntargeted
	EventID   string
	EventType string
	Class     string
	Action    string
	Target    string
	Message   string

	DirectAttempted     bool
	Direct              bool
	Unit                int
	Organization        int
	DerivedOrganization string
	Role                int

	At time.Time

	// MCPSessionID targets a specific MCP client session.
	// Empty means broadcast to all.
	MCPSessionID string
}

// Recipients is the number of writes that succeeded across every scope.
func (e Event) Recipients() int {
	n := e.Unit + e.Organization + e.Role
	if e.Direct {
		n++
	}
	return n
}

// Notifier receives route outcomes.
type Notifier interface {
	Notify(event Event)
}

// Hub dispatches events to multiple notifiers.
type Hub struct {
	notifiers []Notifier
}

// NewHub creates a Hub with the given notifiers.
func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Notify sends an event to all registered notifiers.
func (h *Hub) Notify(event Event) {
	for _, n := range h.notifiers {
		go n.Notify(event)
	}
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

// Notify calls f(event).
func (f NotifierFunc) Notify(event Event) { f(event) }
