// Package client ingests wire events on the receiving side and turns each
// logically distinct event into exactly one notification.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/btouchard/switchboard/internal/wire"
)

// ErrMalformed is returned for inbound messages that cannot be turned into a notification.
var ErrMalformed = errors.New("malformed message")

// Message is one inbound event as seen by the ingestion pipeline.
type Message struct {
	Type      wire.Type      `json:"type,omitempty"`
	Category  wire.Category  `json:"category,omitempty"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp,omitzero"`
}

// FromEnvelope converts a routed envelope.
func FromEnvelope(env wire.Envelope) Message {
	return Message{Type: env.Type, Data: env.Data, Timestamp: env.Timestamp}
}

// DecodeMessage parses a raw inbound message and validates it.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m.normalize()
}

// normalize resolves the category and rejects messages without data.
func (m Message) normalize() (Message, error) {
	if m.Data == nil {
		return Message{}, fmt.Errorf("%w: missing data", ErrMalformed)
	}
	if m.Category != "" {
		c, ok := wire.ParseCategory(string(m.Category))
		if !ok {
			return Message{}, fmt.Errorf("%w: unknown category %q", ErrMalformed, m.Category)
		}
		m.Category = c
		return m, nil
	}
	c, ok := wire.CategoryOf(m.Type)
	if !ok {
		return Message{}, fmt.Errorf("%w: no category for type %q", ErrMalformed, m.Type)
	}
	m.Category = c
	return m, nil
}

// identityFields are tried in order for the stable identity of an event.
var identityFields = []string{"id", "tripId", "driverId", "clientId", "entityId"}

// KeyOf derives the dedup key category:identity:status-or-action. Two messages
// describing the same change of the same item share a key whatever path they took.
func KeyOf(m Message) string {
	identity := ""
	for _, f := range identityFields {
		if s := scalar(m.Data[f]); s != "" {
			identity = s
			break
		}
	}
	if identity == "" {
		identity = scalar(m.Data["message"])
	}

	change := strings.ToLower(scalar(m.Data["status"]))
	if change == "" {
		change = strings.ToLower(scalar(m.Data["action"]))
	}
	if change == "" && m.Type != "" {
		change = string(m.Type)
	}
	return string(m.Category) + ":" + identity + ":" + change
}

// scalar renders strings and JSON numbers; anything else is treated as absent.
func scalar(v any) string {
	switch v := v.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
