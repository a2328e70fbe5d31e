package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// journal drivers
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported journal database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type dialect struct {
	schema string
	insert string
	bind   func(n int) string
}

var dialects = map[string]dialect{
	DriverPostgres: {
		schema: `
	CREATE TABLE IF NOT EXISTS plugin_journal (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		event_type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		session VARCHAR(36),
		plugin VARCHAR(255),
		plugin_version VARCHAR(50),
		kind VARCHAR(20),
		path TEXT,
		duration_ms DOUBLE PRECISION,
		message TEXT,
		error_message TEXT,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_plugin_journal_timestamp ON plugin_journal(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_plugin_journal_plugin ON plugin_journal(plugin);
	CREATE INDEX IF NOT EXISTS idx_plugin_journal_session ON plugin_journal(session);
	`,
		bind: func(n int) string { return fmt.Sprintf("$%d", n) },
	},
	DriverSQLite: {
		schema: `
	CREATE TABLE IF NOT EXISTS plugin_journal (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		event_type TEXT NOT NULL,
		status TEXT NOT NULL,
		session TEXT,
		plugin TEXT,
		plugin_version TEXT,
		kind TEXT,
		path TEXT,
		duration_ms REAL,
		message TEXT,
		error_message TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_plugin_journal_timestamp ON plugin_journal(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_plugin_journal_plugin ON plugin_journal(plugin);
	CREATE INDEX IF NOT EXISTS idx_plugin_journal_session ON plugin_journal(session);
	`,
		bind: func(int) string { return "?" },
	},
}

var journalColumns = []string{
	"timestamp", "event_type", "status", "session",
	"plugin", "plugin_version", "kind", "path",
	"duration_ms", "message", "error_message",
}

func (d dialect) insertQuery() string {
	binds := make([]string, len(journalColumns))
	for i := range binds {
		binds[i] = d.bind(i + 1)
	}
	return fmt.Sprintf("INSERT INTO plugin_journal (%s) VALUES (%s) RETURNING id",
		strings.Join(journalColumns, ", "), strings.Join(binds, ", "))
}

// DBLogger writes the journal to a SQL database
type DBLogger struct {
	db      *sql.DB
	dialect dialect
	insert  string
}

// ParseDSN splits a journal DSN into a database/sql driver name and data source.
// sqlite3://PATH opens the SQLite file PATH; postgres:// and postgresql:// URLs
// are handed to the PostgreSQL driver unchanged.
func ParseDSN(dsn string) (driver, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite3://"):
		source = strings.TrimPrefix(dsn, "sqlite3://")
		if source == "" {
			return "", "", fmt.Errorf("sqlite3 journal DSN has no path")
		}
		return DriverSQLite, source, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DriverPostgres, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported journal DSN: %s", dsn)
	}
}

// OpenDBLogger connects to the database named by dsn and prepares the journal table
func OpenDBLogger(ctx context.Context, dsn string) (*DBLogger, error) {
	driver, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	logger, err := NewDBLogger(ctx, db, driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return logger, nil
}

// NewDBLogger creates a database-based journal on db.
// The journal owns db from then on and closes it in Close.
func NewDBLogger(ctx context.Context, db *sql.DB, driver string) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported journal driver: %s", driver)
	}

	logger := &DBLogger{db: db, dialect: d, insert: d.insertQuery()}
	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		return nil, fmt.Errorf("failed to ensure plugin_journal table: %w", err)
	}
	return logger, nil
}

// Log inserts an event and sets its ID
func (l *DBLogger) Log(ctx context.Context, event *Event) error {
	err := l.db.QueryRowContext(ctx, l.insert,
		event.Timestamp, event.EventType, event.Status, event.Session,
		event.Plugin, event.PluginVersion, event.Kind, event.Path,
		event.DurationMS, event.Message, event.ErrorMessage,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}
	return nil
}

// Query returns the newest events matching filter, newest first
func (l *DBLogger) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = %s", column, l.dialect.bind(len(args))))
	}
	if filter.Plugin != "" {
		add("plugin", filter.Plugin)
	}
	if filter.Session != "" {
		add("session", filter.Session)
	}
	if filter.EventType != "" {
		add("event_type", string(filter.EventType))
	}

	query := "SELECT id, " + strings.Join(journalColumns, ", ") + " FROM plugin_journal"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += " LIMIT " + l.dialect.bind(len(args))

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			event                                         Event
			session, plugin, version, kind, path, message sql.NullString
			errorMessage                                  sql.NullString
			duration                                      sql.NullFloat64
		)
		if err := rows.Scan(&event.ID, &event.Timestamp, &event.EventType, &event.Status, &session,
			&plugin, &version, &kind, &path, &duration, &message, &errorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		event.Session = session.String
		event.Plugin = plugin.String
		event.PluginVersion = version.String
		event.Kind = kind.String
		event.Path = path.String
		event.DurationMS = duration.Float64
		event.Message = message.String
		event.ErrorMessage = errorMessage.String
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	return events, nil
}

// Close closes the database connection
func (l *DBLogger) Close() error {
	return l.db.Close()
}
