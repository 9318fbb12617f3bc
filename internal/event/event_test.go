package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btouchard/switchboard/internal/wire"
)

func TestNewTarget_IgnoresEmptyScopes(t *testing.T) {
	t.Parallel()

	target := NewTarget(User{""}, Role{""}, Unit{"p1"})

	require.Len(t, target.Scopes(), 1)
	assert.Equal(t, Unit{"p1"}, target.Scopes()[0])
}

func TestNewTarget_LaterScopeOfSameKindWins(t *testing.T) {
	t.Parallel()

	target := NewTarget(Unit{"p1"}, User{"u1"}, Unit{"p2"})

	assert.Equal(t, []Scope{User{"u1"}, Unit{"p2"}}, target.Scopes())
}

func TestTarget_NoneRoutesNowhere(t *testing.T) {
	t.Parallel()

	assert.True(t, None.IsNone())
	assert.True(t, NewTarget().IsNone())
	assert.Equal(t, "none", None.String())
	assert.Nil(t, None.Wire())
}

func TestTarget_WithDoesNotMutateReceiver(t *testing.T) {
	t.Parallel()

	base := NewTarget(User{"u1"})
	extended := base.With(Unit{"p1"})

	assert.Len(t, base.Scopes(), 1)
	assert.Len(t, extended.Scopes(), 2)
}

func TestTargetFromWire_ConvertsEveryField(t *testing.T) {
	t.Parallel()

	target := TargetFromWire(&wire.Target{UserID: "u1", Role: "dispatcher", UnitID: "p1", OrganizationID: "o1"})

	assert.Equal(t, "user:u1,role:dispatcher,unit:p1,organization:o1", target.String())
	assert.Equal(t, &wire.Target{UserID: "u1", Role: "dispatcher", UnitID: "p1", OrganizationID: "o1"}, target.Wire())
}

func TestTargetFromWire_NilIsNone(t *testing.T) {
	t.Parallel()

	assert.True(t, TargetFromWire(nil).IsNone())
	assert.True(t, TargetFromWire(&wire.Target{}).IsNone())
}

func TestFromPublish_AssignsIDAndTimestamp(t *testing.T) {
	t.Parallel()

	ev := FromPublish(&wire.PublishRequest{
		Type:   wire.TypeNewTrip,
		Data:   map[string]any{"id": "t1"},
		Target: &wire.Target{UnitID: "p1"},
	})

	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, wire.TypeNewTrip, ev.Type)
	assert.Equal(t, "unit:p1", ev.Target.String())
}

func TestNew_DefaultsNilPayload(t *testing.T) {
	t.Parallel()

	ev := New(wire.TypeSystemUpdate, nil, None)
	assert.NotNil(t, ev.Payload)
}
