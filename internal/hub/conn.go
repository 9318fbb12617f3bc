package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/btouchard/switchboard/internal/auth"
)

// State is the liveness state of a connection.
type State string

const (
	StateConnecting  State = "connecting"
	StateOpen        State = "open"
	StateConfirmed   State = "confirmed"
	StateUnconfirmed State = "unconfirmed"
	StateClosed      State = "closed"
)

// Transport is the socket behind a connection. Implementations must allow
// Ping and Close to be called concurrently with Send.
type Transport interface {
	Send(v any) error
	Ping() error
	Close() error
}

// Conn is one live, authenticated connection.
type Conn struct {
	mu sync.Mutex

	principal   auth.Principal
	transport   Transport
	state       State
	connectedAt time.Time
	lastPong    time.Time
}

func newConn(p auth.Principal, t Transport, now time.Time) *Conn {
	return &Conn{
		principal:   p,
		transport:   t,
		state:       StateConnecting,
		connectedAt: now,
	}
}

// Principal returns the verified identity of the connection.
func (c *Conn) Principal() auth.Principal {
	return c.principal
}

// State returns the current liveness state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Live reports whether the connection can still be written to.
func (c *Conn) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live()
}

func (c *Conn) live() bool {
	return c.state == StateOpen || c.state == StateConfirmed || c.state == StateUnconfirmed
}

// open moves connecting → open once the connection is registered.
func (c *Conn) open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateConnecting {
		c.state = StateOpen
	}
}

// Confirm records a heartbeat reply: any live state → confirmed.
func (c *Conn) Confirm(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.live() {
		return
	}
	c.state = StateConfirmed
	c.lastPong = now
}

// probe runs one heartbeat step. It returns false when the connection missed
// the previous cycle and must be torn down.
func (c *Conn) probe() bool {
	c.mu.Lock()
	switch c.state {
	case StateOpen, StateConfirmed:
		c.state = StateUnconfirmed
	case StateConnecting:
		c.mu.Unlock()
		return true
	default: // unconfirmed since the last cycle, or already closed
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	if err := c.transport.Ping(); err != nil {
		slog.Debug("heartbeat ping failed", "principal_id", c.principal.ID, "error", err)
		return false
	}
	return true
}

// Send writes v if the connection is still live. Not-live is a silent no-op;
// a write error closes the connection. It reports whether v was written.
func (c *Conn) Send(v any) bool {
	c.mu.Lock()
	live := c.live()
	c.mu.Unlock()
	if !live {
		return false
	}

	if err := c.transport.Send(v); err != nil {
		slog.Debug("send failed, closing connection", "principal_id", c.principal.ID, "error", err)
		c.Close()
		return false
	}
	return true
}

// Close moves any state → closed and closes the transport once.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		slog.Debug("closing transport", "principal_id", c.principal.ID, "error", err)
	}
}

// Info is a point-in-time view of a connection for admin listings.
type Info struct {
	PrincipalID  string    `json:"principalId"`
	Role         string    `json:"role"`
	Unit         string    `json:"unitId,omitempty"`
	Organization string    `json:"organizationId,omitempty"`
	State        State     `json:"state"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastPong     time.Time `json:"lastPong,omitzero"`
}

// Info returns a snapshot of the connection.
func (c *Conn) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Info{
		PrincipalID:  c.principal.ID,
		Role:         c.principal.Role,
		Unit:         c.principal.Unit,
		Organization: c.principal.Organization,
		State:        c.state,
		ConnectedAt:  c.connectedAt,
		LastPong:     c.lastPong,
	}
}
