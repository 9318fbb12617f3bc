package store

import "time"

// Store is the persistence interface for the route audit log.
type Store interface {
	RecordRoute(r *RouteRecord) error
	ListRoutes(filter RouteFilter) ([]RouteRecord, error)

	// Cleanup deletes routes recorded before the cutoff and returns how many were removed.
	Cleanup(before time.Time) (int64, error)
	Close() error
}

// RouteRecord is the persistent representation of one routing outcome.
type RouteRecord struct {
	ID                  int64
	Outcome             string
	EventID             string
	EventType           string
	Class               string
	Action              string
	Target              string
	DirectAttempted     bool
	Direct              bool
	Unit                int
	Organization        int
	DerivedOrganization string
	Role                int
	Recipients          int
	CreatedAt           time.Time
}

// RouteFilter defines criteria for listing routes.
type RouteFilter struct {
	EventType string
	Outcome   string
	Since     time.Time
	Limit     int
}
