package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope_MarshalsISOTimestampAndOmitsEmptyTarget(t *testing.T) {
	t.Parallel()

	env := Envelope{
		Type:      TypeTripUpdate,
		Data:      map[string]any{"id": "t1"},
		Timestamp: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"trip_update","data":{"id":"t1"},"timestamp":"2026-03-01T12:30:00Z"}`, string(raw))
}

func TestEnvelope_MarshalsTargetFieldsByPresence(t *testing.T) {
	t.Parallel()

	env := Envelope{
		Type:      TypeNewTrip,
		Data:      map[string]any{},
		Timestamp: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Target:    &Target{UserID: "u1", UnitID: "p1"},
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, map[string]any{"userId": "u1", "unitId": "p1"}, decoded["target"])
}

func TestNewGreeting_UsesConnectionType(t *testing.T) {
	t.Parallel()

	g := NewGreeting("u1", time.Now())

	raw, err := json.Marshal(g)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "connection", decoded["type"])
	assert.Contains(t, decoded["message"], "u1")
	assert.NotEmpty(t, decoded["timestamp"])
}

func TestDecodePublish_AcceptsDomainTypes(t *testing.T) {
	t.Parallel()

	req, err := DecodePublish([]byte(`{"type":"trip_update","data":{"id":"t1"},"target":{"unitId":"p1"}}`))
	require.NoError(t, err)

	assert.Equal(t, TypeTripUpdate, req.Type)
	assert.Equal(t, "t1", req.Data["id"])
	require.NotNil(t, req.Target)
	assert.Equal(t, "p1", req.Target.UnitID)
}

func TestDecodePublish_RejectsControlAndUnknownTypes(t *testing.T) {
	t.Parallel()

	for _, typ := range []string{"connection", "ping", "invoice_paid", ""} {
		_, err := DecodePublish([]byte(`{"type":"` + typ + `","data":{}}`))
		assert.ErrorIs(t, err, ErrUnknownType, "type %q", typ)
	}
}

func TestDecodePublish_DefaultsMissingData(t *testing.T) {
	t.Parallel()

	req, err := DecodePublish([]byte(`{"type":"system_update"}`))
	require.NoError(t, err)
	assert.NotNil(t, req.Data)
}

func TestDecodePublish_RejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := DecodePublish([]byte(`{"type":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding publish request")
}

func TestDecode_RequiresType(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte(`{"data":{}}`))
	require.Error(t, err)

	env, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, TypePing, env.Type)
}

func TestCategoryOf_MapsEveryDomainType(t *testing.T) {
	t.Parallel()

	cases := map[Type]Category{
		TypeTripUpdate:   CategoryTrip,
		TypeNewTrip:      CategoryTrip,
		TypeTripTagged:   CategoryTrip,
		TypeDriverUpdate: CategoryDriver,
		TypeClientUpdate: CategoryClient,
		TypeSystemUpdate: CategorySystem,
	}
	for typ, want := range cases {
		got, ok := CategoryOf(typ)
		assert.True(t, ok, "type %s", typ)
		assert.Equal(t, want, got, "type %s", typ)
	}

	_, ok := CategoryOf(TypePing)
	assert.False(t, ok)
}

func TestParseCategoryAndPriority(t *testing.T) {
	t.Parallel()

	c, ok := ParseCategory("maintenance")
	assert.True(t, ok)
	assert.Equal(t, CategoryMaintenance, c)
	_, ok = ParseCategory("marketing")
	assert.False(t, ok)

	p, ok := ParsePriority("urgent")
	assert.True(t, ok)
	assert.Equal(t, PriorityUrgent, p)
	_, ok = ParsePriority("critical")
	assert.False(t, ok)
}

func TestTarget_IsZero(t *testing.T) {
	t.Parallel()

	assert.True(t, Target{}.IsZero())
	assert.False(t, Target{Role: "dispatcher"}.IsZero())
}
