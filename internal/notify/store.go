package notify

import (
	"log/slog"

	"github.com/btouchard/switchboard/internal/store"
)

// StoreNotifier writes every route outcome to the audit log.
type StoreNotifier struct {
	store store.Store
}

// NewStoreNotifier creates a notifier backed by s.
func NewStoreNotifier(s store.Store) *StoreNotifier {
	return &StoreNotifier{store: s}
}

// Notify records the event. Failures are logged; routing never waits on the log.
func (n *StoreNotifier) Notify(event Event) {
	rec := &store.RouteRecord{
		Outcome:             event.Type,
		EventID:             event.EventID,
		EventType:           event.EventType,
		Class:               event.Class,
		Action:              event.Action,
		Target:              event.Target,
		DirectAttempted:     event.DirectAttempted,
		Direct:              event.Direct,
		Unit:                event.Unit,
		Organization:        event.Organization,
		DerivedOrganization: event.DerivedOrganization,
		Role:                event.Role,
		Recipients:          event.Recipients(),
		CreatedAt:           event.At,
	}
	if err := n.store.RecordRoute(rec); err != nil {
		slog.Error("recording route", "event_id", event.EventID, "error", err)
	}
}
