// Package event holds the routable domain event and its target descriptor.
package event

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/btouchard/switchboard/internal/wire"
)

// Scope is one audience in a target. The set of implementations is closed:
// User, Role, Unit and Organization.
type Scope interface {
	scope()
	String() string
}

// User targets a single principal.
type User struct{ ID string }

// Role targets every principal with the role.
type Role struct{ Name string }

// Unit targets every principal scoped to an operational unit.
type Unit struct{ ID string }

// Organization targets every principal scoped to an organization.
type Organization struct{ ID string }

func (User) scope()         {}
func (Role) scope()         {}
func (Unit) scope()         {}
func (Organization) scope() {}

func (s User) String() string         { return "user:" + s.ID }
func (s Role) String() string         { return "role:" + s.Name }
func (s Unit) String() string         { return "unit:" + s.ID }
func (s Organization) String() string { return "organization:" + s.ID }

// Target is a set of scopes holding at most one scope of each kind.
// The zero value is None and routes nowhere.
type Target struct {
	scopes []Scope
}

// None is the empty target.
var None = Target{}

// NewTarget builds a target. A later scope of the same kind replaces an earlier one;
// scopes with empty identifiers are ignored.
func NewTarget(scopes ...Scope) Target {
	var t Target
	for _, s := range scopes {
		t = t.With(s)
	}
	return t
}

// With returns a copy of t with s added or replacing the scope of the same kind.
func (t Target) With(s Scope) Target {
	if s == nil || scopeID(s) == "" {
		return t
	}
	out := make([]Scope, 0, len(t.scopes)+1)
	for _, existing := range t.scopes {
		if sameKind(existing, s) {
			continue
		}
		out = append(out, existing)
	}
	return Target{scopes: append(out, s)}
}

// Scopes returns the scopes in insertion order.
func (t Target) Scopes() []Scope {
	return append([]Scope(nil), t.scopes...)
}

// IsNone reports whether the target has no scope.
func (t Target) IsNone() bool {
	return len(t.scopes) == 0
}

func (t Target) String() string {
	if t.IsNone() {
		return "none"
	}
	parts := make([]string, len(t.scopes))
	for i, s := range t.scopes {
		parts[i] = s.String()
	}
	return strings.Join(parts, ",")
}

// Wire converts the target back to its wire shape.
func (t Target) Wire() *wire.Target {
	if t.IsNone() {
		return nil
	}
	var w wire.Target
	for _, s := range t.scopes {
		switch s := s.(type) {
		case User:
			w.UserID = s.ID
		case Role:
			w.Role = s.Name
		case Unit:
			w.UnitID = s.ID
		case Organization:
			w.OrganizationID = s.ID
		}
	}
	return &w
}

// TargetFromWire converts the presence-checked wire target into the tagged form.
func TargetFromWire(w *wire.Target) Target {
	if w == nil {
		return None
	}
	return NewTarget(User{w.UserID}, Role{w.Role}, Unit{w.UnitID}, Organization{w.OrganizationID})
}

func scopeID(s Scope) string {
	switch s := s.(type) {
	case User:
		return s.ID
	case Role:
		return s.Name
	case Unit:
		return s.ID
	case Organization:
		return s.ID
	default:
		panic(fmt.Sprintf("event: unknown scope type %T", s))
	}
}

func sameKind(a, b Scope) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// DomainEvent is an already-assembled payload waiting to be routed.
type DomainEvent struct {
	ID        string
	Type      wire.Type
	Payload   map[string]any
	Timestamp time.Time
	Target    Target
}

// New builds an event with a fresh id and the current time.
func New(typ wire.Type, payload map[string]any, target Target) DomainEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	return DomainEvent{
		ID:        uuid.NewString(),
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		Target:    target,
	}
}

// FromPublish converts a validated publish request.
func FromPublish(req *wire.PublishRequest) DomainEvent {
	return New(req.Type, req.Data, TargetFromWire(req.Target))
}
