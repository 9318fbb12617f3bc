package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed-width UTC timestamps so string comparison in SQL matches time order.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

const memoryPath = ":memory:"

const defaultListLimit = 50

var migrations = []string{
	`CREATE TABLE routes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		outcome TEXT NOT NULL,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		class TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		target TEXT NOT NULL DEFAULT '',
		direct_attempted INTEGER NOT NULL DEFAULT 0,
		direct INTEGER NOT NULL DEFAULT 0,
		unit_count INTEGER NOT NULL DEFAULT 0,
		organization_count INTEGER NOT NULL DEFAULT 0,
		derived_organization TEXT NOT NULL DEFAULT '',
		role_count INTEGER NOT NULL DEFAULT 0,
		recipients INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_routes_created_at ON routes(created_at);
	CREATE INDEX idx_routes_event_type ON routes(event_type);`,
}

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := memoryPath
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite has a single writer, and an in-memory database
	// lives only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordRoute appends r and sets its ID. A zero CreatedAt is stamped with the current time.
func (s *SQLiteStore) RecordRoute(r *RouteRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.Exec(`INSERT INTO routes (outcome, event_id, event_type, class, action, target,
		direct_attempted, direct, unit_count, organization_count, derived_organization, role_count,
		recipients, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Outcome, r.EventID, r.EventType, r.Class, r.Action, r.Target,
		boolToInt(r.DirectAttempted), boolToInt(r.Direct), r.Unit, r.Organization,
		r.DerivedOrganization, r.Role, r.Recipients, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting route: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading route id: %w", err)
	}
	r.ID = id
	return nil
}

// ListRoutes returns matching routes, newest first.
func (s *SQLiteStore) ListRoutes(f RouteFilter) ([]RouteRecord, error) {
	query := `SELECT id, outcome, event_id, event_type, class, action, target,
		direct_attempted, direct, unit_count, organization_count, derived_organization, role_count,
		recipients, created_at
		FROM routes WHERE 1=1`
	var args []any

	if f.EventType != "" {
		query += " AND event_type = ?"
		args = append(args, f.EventType)
	}
	if f.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, f.Outcome)
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, formatTime(f.Since))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing routes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var routes []RouteRecord
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

// Cleanup deletes routes recorded before the cutoff.
func (s *SQLiteStore) Cleanup(before time.Time) (int64, error) {
	res, err := s.db.Exec("DELETE FROM routes WHERE created_at < ?", formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("cleaning routes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting cleaned routes: %w", err)
	}
	return n, nil
}

func scanRoute(rows *sql.Rows) (RouteRecord, error) {
	var r RouteRecord
	var directAttempted, direct int
	var createdAt string

	err := rows.Scan(&r.ID, &r.Outcome, &r.EventID, &r.EventType, &r.Class, &r.Action, &r.Target,
		&directAttempted, &direct, &r.Unit, &r.Organization, &r.DerivedOrganization, &r.Role,
		&r.Recipients, &createdAt)
	if err != nil {
		return RouteRecord{}, fmt.Errorf("scanning route: %w", err)
	}

	r.DirectAttempted = directAttempted != 0
	r.Direct = direct != 0
	r.CreatedAt = parseTime(createdAt)
	return r, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
