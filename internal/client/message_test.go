package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/switchboard/internal/wire"
)

func TestDecodeMessage_ExplicitCategory(t *testing.T) {
	t.Parallel()

	m, err := DecodeMessage([]byte(`{"category":"trip","data":{"id":"t1","status":"completed"}}`))

	require.NoError(t, err)
	assert.Equal(t, wire.CategoryTrip, m.Category)
	assert.Equal(t, "trip:t1:completed", KeyOf(m))
}

func TestDecodeMessage_CategoryFromType(t *testing.T) {
	t.Parallel()

	m, err := DecodeMessage([]byte(`{"type":"driver_update","data":{"driverId":42,"action":"assignment"}}`))

	require.NoError(t, err)
	assert.Equal(t, wire.CategoryDriver, m.Category)
	assert.Equal(t, "driver:42:assignment", KeyOf(m))
}

func TestDecodeMessage_Malformed(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"not json":         `{`,
		"no data":          `{"category":"trip"}`,
		"unknown category": `{"category":"weather","data":{}}`,
		"no category":      `{"type":"ping","data":{}}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeMessage([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestKeyOf_SamePathIndependent(t *testing.T) {
	t.Parallel()

	direct := FromEnvelope(wire.Envelope{
		Type: wire.TypeTripUpdate,
		Data: map[string]any{"id": "t1", "status": "Completed", "counterpartyName": "Ada"},
	})
	broadcast := Message{Category: wire.CategoryTrip, Data: map[string]any{"id": "t1", "status": "completed"}}

	direct, err := direct.normalize()
	require.NoError(t, err)

	assert.Equal(t, KeyOf(broadcast), KeyOf(direct))
}

func TestKeyOf_FallsBackToMessageAndType(t *testing.T) {
	t.Parallel()

	m := Message{Type: wire.TypeSystemUpdate, Category: wire.CategorySystem, Data: map[string]any{"message": "maintenance tonight"}}

	assert.Equal(t, "system:maintenance tonight:system_update", KeyOf(m))
}

func TestKeyOf_IdentityPrecedence(t *testing.T) {
	t.Parallel()

	m := Message{Category: wire.CategoryTrip, Data: map[string]any{"tripId": "t7", "driverId": "d1", "status": "scheduled"}}

	assert.Equal(t, "trip:t7:scheduled", KeyOf(m))
}
