// Package router enriches domain events and fans them out to the connections
// their target names.
package router

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/btouchard/switchboard/internal/event"
	"github.com/btouchard/switchboard/internal/hub"
	"github.com/btouchard/switchboard/internal/notify"
	"github.com/btouchard/switchboard/internal/wire"
)

// Registry is the part of the connection registry the router needs.
type Registry interface {
	Send(principalID string, v any) bool
	Broadcast(conns []*hub.Conn, v any) int
	LookupByRole(role string) []*hub.Conn
	LookupByUnit(unit string) []*hub.Conn
	LookupByOrganization(org string) []*hub.Conn
	LookupOrganizationLevel(org string) []*hub.Conn
}

// Hierarchy resolves the organization containing a unit.
type Hierarchy interface {
	OrganizationOf(unit string) (string, bool)
}

// StaticHierarchy is a fixed unit → organization table.
type StaticHierarchy map[string]string

// OrganizationOf returns the parent organization of unit.
func (h StaticHierarchy) OrganizationOf(unit string) (string, bool) {
	org, ok := h[unit]
	return org, ok && org != ""
}

// Report is the outcome of routing one event.
type Report struct {
	EventID string
	Type    wire.Type
	Target  event.Target
	Enrichment

	DirectAttempted bool
	Direct          bool

	Unit                int
	Organization        int
	DerivedOrganization string
	Role                int

	At time.Time

	// Session is the MCP session that asked for the route, if any.
	Session string
}

// Recipients is the number of successful writes across all scopes.
func (r Report) Recipients() int {
	n := r.Unit + r.Organization + r.Role
	if r.Direct {
		n++
	}
	return n
}

// Event converts the report for observers.
func (r Report) Event() notify.Event {
	typ := notify.TypeDelivered
	switch {
	case r.Target.IsNone():
		typ = notify.TypeUntargeted
	case r.Recipients() == 0:
		typ = notify.TypeUndelivered
	}
	return notify.Event{
		Type:                typ,
		EventID:             r.EventID,
		EventType:           string(r.Type),
		Class:               string(r.Class),
		Action:              string(r.Action),
		Target:              r.Target.String(),
		Message:             r.summary(),
		DirectAttempted:     r.DirectAttempted,
		Direct:              r.Direct,
		Unit:                r.Unit,
		Organization:        r.Organization,
		DerivedOrganization: r.DerivedOrganization,
		Role:                r.Role,
		At:                  r.At,
		MCPSessionID:        r.Session,
	}
}

func (r Report) summary() string {
	msg := fmt.Sprintf("%s (%s) to %s: %d recipient(s)", r.Type, r.Action, r.Target, r.Recipients())
	if r.Transition != "" {
		msg += ", " + r.Transition
	}
	return msg
}

// Router applies the fan-out policy.
type Router struct {
	registry  Registry
	hierarchy Hierarchy
	notifier  notify.Notifier
	now       func() time.Time
}

// Option configures a Router.
type Option func(*Router)

// WithNotifier reports every routing outcome to n.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Router) { r.notifier = n }
}

// WithClock overrides the time source of reports.
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// New creates a router over registry. hierarchy may be nil when no unit has a
// known parent organization.
func New(registry Registry, hierarchy Hierarchy, opts ...Option) *Router {
	if hierarchy == nil {
		hierarchy = StaticHierarchy(nil)
	}
	r := &Router{
		registry:  registry,
		hierarchy: hierarchy,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// scopes is the target unpacked by kind.
type scopes struct {
	user *event.User
	role *event.Role
	unit *event.Unit
	org  *event.Organization
}

func unpack(t event.Target) scopes {
	var s scopes
	for _, sc := range t.Scopes() {
		switch sc := sc.(type) {
		case event.User:
			s.user = &sc
		case event.Role:
			s.role = &sc
		case event.Unit:
			s.unit = &sc
		case event.Organization:
			s.org = &sc
		default:
			panic(fmt.Sprintf("router: unhandled scope %T", sc))
		}
	}
	return s
}

// Route enriches ev and writes it to every connection the policy selects.
// Delivery is best effort; the report says who actually got it.
func (r *Router) Route(ev event.DomainEvent) Report {
	return r.RouteFrom("", ev)
}

// RouteFrom is Route on behalf of an MCP session, which gets the outcome pushed back.
func (r *Router) RouteFrom(session string, ev event.DomainEvent) Report {
	enrichment, data := Enrich(ev.Type, ev.Payload)

	ts := ev.Timestamp
	if ts.IsZero() {
		ts = r.now().UTC()
	}
	env := wire.Envelope{
		Type:      ev.Type,
		Data:      data,
		Timestamp: ts,
		Target:    ev.Target.Wire(),
	}

	rep := Report{
		EventID:    ev.ID,
		Type:       ev.Type,
		Target:     ev.Target,
		Enrichment: enrichment,
		At:         r.now().UTC(),
		Session:    session,
	}

	s := unpack(ev.Target)

	if s.user != nil {
		rep.DirectAttempted = true
		rep.Direct = r.registry.Send(s.user.ID, env)
	}

	if s.unit != nil {
		if enrichment.Class == ClassCreation && rep.Direct {
			slog.Debug("creation delivered directly, skipping unit broadcast",
				"event_id", ev.ID, "unit_id", s.unit.ID)
		} else {
			rep.Unit = r.registry.Broadcast(r.registry.LookupByUnit(s.unit.ID), env)
		}
	}

	switch {
	case s.org != nil:
		rep.Organization = r.registry.Broadcast(r.registry.LookupByOrganization(s.org.ID), env)
	case s.unit != nil:
		if org, ok := r.hierarchy.OrganizationOf(s.unit.ID); ok {
			rep.DerivedOrganization = org
			rep.Organization = r.registry.Broadcast(r.registry.LookupOrganizationLevel(org), env)
		}
	}

	if s.role != nil && s.unit == nil && s.org == nil {
		rep.Role = r.registry.Broadcast(r.registry.LookupByRole(s.role.Name), env)
	}

	if ev.Target.IsNone() {
		slog.Warn("event has no target, not routed", "event_id", ev.ID, "type", ev.Type)
	} else {
		slog.Debug("event routed",
			"event_id", ev.ID,
			"type", ev.Type,
			"class", enrichment.Class,
			"action", enrichment.Action,
			"target", ev.Target.String(),
			"direct", rep.Direct,
			"recipients", rep.Recipients())
	}

	if r.notifier != nil {
		r.notifier.Notify(rep.Event())
	}
	return rep
}

// Publish routes a validated publish request.
func (r *Router) Publish(req *wire.PublishRequest) Report {
	return r.Route(event.FromPublish(req))
}
