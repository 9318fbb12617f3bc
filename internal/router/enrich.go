package router

import (
	"maps"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/btouchard/switchboard/internal/wire"
)

// Class separates creation events from updates to an existing item.
type Class string

const (
	ClassCreation Class = "creation"
	ClassUpdate   Class = "update"
)

// Action describes what changed on the item.
type Action string

const (
	ActionStatusUpdate Action = "status_update"
	ActionAssignment   Action = "assignment"
	ActionModification Action = "modification"
	ActionCancellation Action = "cancellation"
)

// actionCreated is the producer-side marker for a creation on a generic event type.
const actionCreated = "created"

// Unknown is the counterparty name when nothing in the payload names one.
const Unknown = "Unknown"

// Payload keys written by the enricher.
const (
	KeyAction           = "action"
	KeyCounterpartyName = "counterpartyName"
	KeyStatusTransition = "statusTransition"
)

// ParseAction accepts only the known actions.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionStatusUpdate, ActionAssignment, ActionModification, ActionCancellation:
		return a, true
	default:
		return "", false
	}
}

// Enrichment is what the enricher derived from one payload.
type Enrichment struct {
	Class        Class
	Action       Action
	Counterparty string
	Transition   string
}

// Enrich derives the human-readable fields of an event and returns them together
// with a copy of payload carrying those fields. payload is never modified.
func Enrich(typ wire.Type, payload map[string]any) (Enrichment, map[string]any) {
	e := Enrichment{
		Class:  classify(typ, payload),
		Action: classifyAction(typ, payload),
	}

	out := make(map[string]any, len(payload)+3)
	maps.Copy(out, payload)

	if rel := relationOf(typ); rel != "" {
		e.Counterparty = counterpartyName(payload, rel)
		out[KeyCounterpartyName] = e.Counterparty
	}

	prev, next := previousStatus(payload), stringField(payload, "status")
	if prev != "" && next != "" {
		e.Transition = DisplayStatus(prev) + " → " + DisplayStatus(next)
		out[KeyStatusTransition] = e.Transition
	}

	// A producer's "created" marker stays in place; it is what makes the event a creation.
	if stringField(payload, KeyAction) != actionCreated {
		out[KeyAction] = string(e.Action)
	}
	return e, out
}

func classify(typ wire.Type, payload map[string]any) Class {
	if typ == wire.TypeNewTrip || stringField(payload, KeyAction) == actionCreated {
		return ClassCreation
	}
	return ClassUpdate
}

func classifyAction(typ wire.Type, payload map[string]any) Action {
	if a, ok := ParseAction(stringField(payload, KeyAction)); ok {
		return a
	}

	status := normalizeStatus(stringField(payload, "status"))
	if status == "cancelled" || status == "canceled" {
		return ActionCancellation
	}

	if prev := normalizeStatus(previousStatus(payload)); prev != "" && status != "" && prev != status {
		return ActionStatusUpdate
	}

	if typ == wire.TypeTripTagged || isAssignment(payload) {
		return ActionAssignment
	}
	return ActionModification
}

func isAssignment(payload map[string]any) bool {
	if stringField(payload, "assignedDriverId") != "" || stringField(payload, "assignedTo") != "" {
		return true
	}
	if _, ok := payload["previousDriverId"]; ok {
		return stringField(payload, "previousDriverId") != stringField(payload, "driverId")
	}
	return false
}

// relationOf names the payload relation holding the counterparty for a type.
func relationOf(typ wire.Type) string {
	switch typ {
	case wire.TypeTripUpdate, wire.TypeNewTrip, wire.TypeTripTagged, wire.TypeClientUpdate:
		return "client"
	case wire.TypeDriverUpdate:
		return "driver"
	default:
		return ""
	}
}

// counterpartyName walks the fallback chain: explicit name field, structured
// relation, group name, then Unknown.
func counterpartyName(payload map[string]any, rel string) string {
	if name := stringField(payload, rel+"Name"); name != "" {
		return name
	}
	if obj, ok := payload[rel].(map[string]any); ok {
		if name := stringField(obj, "name"); name != "" {
			return name
		}
		full := strings.TrimSpace(stringField(obj, "firstName") + " " + stringField(obj, "lastName"))
		if full != "" {
			return full
		}
	}
	if name := stringField(payload, "groupName"); name != "" {
		return name
	}
	return Unknown
}

func previousStatus(payload map[string]any) string {
	if s := stringField(payload, "previousStatus"); s != "" {
		return s
	}
	return stringField(payload, "oldStatus")
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DisplayStatus turns a status code such as "in_progress" into "In Progress".
func DisplayStatus(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(normalizeStatus(s))
	return cases.Title(language.English).String(s)
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
