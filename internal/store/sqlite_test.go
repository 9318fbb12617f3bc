package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func route(eventType, outcome string, at time.Time) *RouteRecord {
	return &RouteRecord{
		Outcome:   outcome,
		EventID:   fmt.Sprintf("ev-%d", at.UnixNano()),
		EventType: eventType,
		Class:     "update",
		Action:    "modification",
		Target:    "unit:p1",
		Unit:      2,
		CreatedAt: at,
	}
}

func TestSQLiteStore_Migration_CreatesTablesAndVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_Migration_IsIdempotent(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "routes.db")
	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", time.Now())))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	routes, err := s.ListRoutes(RouteFilter{})
	require.NoError(t, err)
	assert.Len(t, routes, 1, "reopening must keep existing rows")
}

func TestSQLiteStore_RecordRoute_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Millisecond)
	rec := &RouteRecord{
		Outcome:             "route.delivered",
		EventID:             "ev-1",
		EventType:           "new_trip",
		Class:               "creation",
		Action:              "created",
		Target:              "user:u1+unit:p1",
		DirectAttempted:     true,
		Direct:              true,
		Unit:                0,
		Organization:        1,
		DerivedOrganization: "o1",
		Recipients:          2,
		CreatedAt:           now,
	}
	require.NoError(t, s.RecordRoute(rec))
	assert.NotZero(t, rec.ID)

	routes, err := s.ListRoutes(RouteFilter{})
	require.NoError(t, err)
	require.Len(t, routes, 1)

	got := routes[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "new_trip", got.EventType)
	assert.Equal(t, "user:u1+unit:p1", got.Target)
	assert.True(t, got.DirectAttempted)
	assert.True(t, got.Direct)
	assert.Equal(t, 1, got.Organization)
	assert.Equal(t, "o1", got.DerivedOrganization)
	assert.Equal(t, 2, got.Recipients)
	assert.True(t, now.Equal(got.CreatedAt))
}

func TestSQLiteStore_RecordRoute_StampsZeroTime(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	rec := route("system_update", "route.untargeted", time.Time{})
	require.NoError(t, s.RecordRoute(rec))
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestSQLiteStore_ListRoutes_FilterByEventType(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now)))
	require.NoError(t, s.RecordRoute(route("driver_update", "route.delivered", now.Add(time.Millisecond))))
	require.NoError(t, s.RecordRoute(route("trip_update", "route.undelivered", now.Add(2*time.Millisecond))))

	routes, err := s.ListRoutes(RouteFilter{EventType: "trip_update"})
	require.NoError(t, err)
	assert.Len(t, routes, 2)
}

func TestSQLiteStore_ListRoutes_FilterByOutcome(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now)))
	require.NoError(t, s.RecordRoute(route("trip_update", "route.undelivered", now.Add(time.Millisecond))))

	routes, err := s.ListRoutes(RouteFilter{Outcome: "route.undelivered"})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "route.undelivered", routes[0].Outcome)
}

func TestSQLiteStore_ListRoutes_FilterBySince(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now.Add(-time.Hour))))
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now)))

	routes, err := s.ListRoutes(RouteFilter{Since: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestSQLiteStore_ListRoutes_Limit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	for i := range 5 {
		require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now.Add(time.Duration(i)*time.Second))))
	}

	routes, err := s.ListRoutes(RouteFilter{Limit: 3})
	require.NoError(t, err)
	assert.Len(t, routes, 3)
}

func TestSQLiteStore_ListRoutes_OrderByCreatedAtDesc(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	older := route("trip_update", "route.delivered", now.Add(-time.Minute))
	newer := route("trip_update", "route.delivered", now)
	require.NoError(t, s.RecordRoute(newer))
	require.NoError(t, s.RecordRoute(older))

	routes, err := s.ListRoutes(RouteFilter{})
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, newer.ID, routes[0].ID)
	assert.Equal(t, older.ID, routes[1].ID)
}

func TestSQLiteStore_Cleanup_RemovesOlderRoutes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now()
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now.Add(-48*time.Hour))))
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now.Add(-25*time.Hour))))
	require.NoError(t, s.RecordRoute(route("trip_update", "route.delivered", now)))

	n, err := s.Cleanup(now.Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	routes, err := s.ListRoutes(RouteFilter{})
	require.NoError(t, err)
	assert.Len(t, routes, 1)
}

func TestNewSQLiteStore_SetsFilePermissions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	dirInfo, err := os.Stat(filepath.Join(dir, "subdir"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm(), "directory should be 0700")

	fileInfo, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), fileInfo.Mode().Perm(), "database file should be 0600")
}
