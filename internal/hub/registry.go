// Package hub keeps the table of live connections, one per principal,
// and runs the heartbeat sweep that evicts unresponsive ones.
package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/btouchard/switchboard/internal/auth"
)

// DefaultHeartbeatInterval is the time between two sweeps.
const DefaultHeartbeatInterval = 30 * time.Second

// Registry maps each principal id to its single live connection.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn

	interval time.Duration
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry sweeping every interval.
func NewRegistry(interval time.Duration, opts ...Option) *Registry {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	r := &Registry{
		conns:    make(map[string]*Conn),
		interval: interval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts the connection for p, closing any prior connection for the
// same principal first.
func (r *Registry) Register(p auth.Principal, t Transport) *Conn {
	c := newConn(p, t, r.now())
	c.open()

	r.mu.Lock()
	prior := r.conns[p.ID]
	r.conns[p.ID] = c
	r.mu.Unlock()

	if prior != nil {
		slog.Info("connection superseded", "principal_id", p.ID)
		prior.Close()
	}

	slog.Info("connection registered",
		"principal_id", p.ID,
		"role", p.Role,
		"unit_id", p.Unit,
		"organization_id", p.Organization)

	return c
}

// Unregister removes c if it is still the connection registered for its
// principal and closes it. A superseded connection never evicts its successor.
func (r *Registry) Unregister(c *Conn) bool {
	id := c.principal.ID

	r.mu.Lock()
	current, ok := r.conns[id]
	removed := ok && current == c
	if removed {
		delete(r.conns, id)
	}
	r.mu.Unlock()

	c.Close()

	if removed {
		slog.Info("connection unregistered", "principal_id", id)
	}
	return removed
}

// LookupByUser returns the live connection of a principal.
func (r *Registry) LookupByUser(id string) (*Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok || !c.Live() {
		return nil, false
	}
	return c, true
}

// LookupByRole returns the live connections whose principal has role.
func (r *Registry) LookupByRole(role string) []*Conn {
	return r.filter(func(p auth.Principal) bool { return p.Role == role })
}

// LookupByUnit returns the live connections scoped to unit.
func (r *Registry) LookupByUnit(unit string) []*Conn {
	return r.filter(func(p auth.Principal) bool { return p.Unit == unit })
}

// LookupByOrganization returns the live connections scoped to org, whatever their unit.
func (r *Registry) LookupByOrganization(org string) []*Conn {
	return r.filter(func(p auth.Principal) bool { return p.Organization == org })
}

// LookupOrganizationLevel returns the live connections scoped to org with no unit scope.
func (r *Registry) LookupOrganizationLevel(org string) []*Conn {
	return r.filter(func(p auth.Principal) bool { return p.Organization == org && p.Unit == "" })
}

// filter is a linear scan; empty scope values never match.
func (r *Registry) filter(match func(auth.Principal) bool) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Conn
	for _, c := range r.conns {
		if !match(c.principal) || !c.Live() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Send delivers v to one principal. It reports false when the principal has no
// live connection or the write failed.
func (r *Registry) Send(principalID string, v any) bool {
	c, ok := r.LookupByUser(principalID)
	if !ok {
		return false
	}
	return r.deliver(c, v)
}

// Broadcast writes v to every connection and returns how many writes succeeded.
func (r *Registry) Broadcast(conns []*Conn, v any) int {
	delivered := 0
	for _, c := range conns {
		if r.deliver(c, v) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) deliver(c *Conn, v any) bool {
	if c.Send(v) {
		return true
	}
	if !c.Live() {
		r.Unregister(c)
	}
	return false
}

// Sweep runs one heartbeat cycle: connections that did not answer the previous
// probe are terminated and unregistered, every other one is marked unconfirmed
// and probed again.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	evicted := 0
	for _, c := range conns {
		if c.probe() {
			continue
		}
		slog.Info("heartbeat timeout, terminating connection", "principal_id", c.principal.ID)
		if r.Unregister(c) {
			evicted++
		}
	}
	return evicted
}

// Confirm records a heartbeat reply for c.
func (r *Registry) Confirm(c *Conn) {
	c.Confirm(r.now())
}

// Run sweeps on a fixed ticker until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				slog.Debug("heartbeat sweep", "evicted", n, "remaining", r.Len())
			}
		case <-ctx.Done():
			return
		}
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Snapshot lists every registered connection, ordered by principal id.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	infos := make([]Info, 0, len(r.conns))
	for _, c := range r.conns {
		infos = append(infos, c.Info())
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].PrincipalID < infos[j].PrincipalID })
	return infos
}

// CloseAll closes and removes every connection. Called on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := r.conns
	r.conns = make(map[string]*Conn)
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	slog.Info("registry closed", "connections", len(conns))
}
