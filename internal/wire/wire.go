// Package wire defines the JSON envelope exchanged over every connection.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownType is returned when a publish request names a type the server does not route.
var ErrUnknownType = errors.New("unknown event type")

// Type is the envelope message type.
type Type string

// Domain event types.
const (
	TypeTripUpdate   Type = "trip_update"
	TypeNewTrip      Type = "new_trip"
	TypeTripTagged   Type = "trip_tagged"
	TypeDriverUpdate Type = "driver_update"
	TypeClientUpdate Type = "client_update"
	TypeSystemUpdate Type = "system_update"
)

// Control types.
const (
	TypeConnection Type = "connection"
	TypePing       Type = "ping"
	TypePong       Type = "pong"
)

// IsDomain reports whether t is a routable domain event type.
func (t Type) IsDomain() bool {
	switch t {
	case TypeTripUpdate, TypeNewTrip, TypeTripTagged, TypeDriverUpdate, TypeClientUpdate, TypeSystemUpdate:
		return true
	default:
		return false
	}
}

// Category groups client notifications.
type Category string

const (
	CategoryTrip        Category = "trip"
	CategoryDriver      Category = "driver"
	CategorySystem      Category = "system"
	CategoryClient      Category = "client"
	CategoryBilling     Category = "billing"
	CategoryMaintenance Category = "maintenance"
)

// ParseCategory accepts only the known categories.
func ParseCategory(s string) (Category, bool) {
	switch c := Category(s); c {
	case CategoryTrip, CategoryDriver, CategorySystem, CategoryClient, CategoryBilling, CategoryMaintenance:
		return c, true
	default:
		return "", false
	}
}

// CategoryOf maps a domain event type to its notification category.
func CategoryOf(t Type) (Category, bool) {
	switch t {
	case TypeTripUpdate, TypeNewTrip, TypeTripTagged:
		return CategoryTrip, true
	case TypeDriverUpdate:
		return CategoryDriver, true
	case TypeClientUpdate:
		return CategoryClient, true
	case TypeSystemUpdate:
		return CategorySystem, true
	default:
		return "", false
	}
}

// Priority of a client notification.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// ParsePriority accepts only the known priorities.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, true
	default:
		return "", false
	}
}

// Target is the wire shape of a routing target. Fields are checked by presence.
type Target struct {
	UserID         string `json:"userId,omitempty"`
	Role           string `json:"role,omitempty"`
	UnitID         string `json:"unitId,omitempty"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// IsZero reports whether no field is set.
func (t Target) IsZero() bool {
	return t == Target{}
}

// Envelope is the message format in both directions.
type Envelope struct {
	Type      Type           `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Target    *Target        `json:"target,omitempty"`
}

// Greeting is sent once after a successful handshake.
type Greeting struct {
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewGreeting builds the connection acknowledgement.
func NewGreeting(principalID string, now time.Time) Greeting {
	return Greeting{
		Type:      TypeConnection,
		Message:   fmt.Sprintf("connected as %s", principalID),
		Timestamp: now.UTC(),
	}
}

// PublishRequest is what producers submit to be routed.
type PublishRequest struct {
	Type   Type           `json:"type"`
	Data   map[string]any `json:"data"`
	Target *Target        `json:"target,omitempty"`
}

// DecodePublish parses and validates a publish request.
func DecodePublish(raw []byte) (*PublishRequest, error) {
	var req PublishRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, fmt.Errorf("decoding publish request: %w", err)
	}
	if !req.Type.IsDomain() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, req.Type)
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	return &req, nil
}

// Decode parses an inbound envelope. Messages without a type are rejected.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decoding envelope: missing type")
	}
	return &env, nil
}
