package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/abdul-hamid-achik/imagic/packages/queue"
)

// DefaultPath is the database used when none is configured.
const DefaultPath = ".imagic/history.db"

const schema = `
CREATE TABLE IF NOT EXISTS uploads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT    NOT NULL,
	tag         TEXT    NOT NULL DEFAULT '',
	url         TEXT    NOT NULL,
	status_code INTEGER NOT NULL DEFAULT 0,
	kind        TEXT    NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error       TEXT    NOT NULL DEFAULT '',
	output      TEXT    NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS uploads_created_at ON uploads (created_at);
`

// Entry is one delivered upload.
type Entry struct {
	ID         int64         `json:"id"`
	RequestID  string        `json:"requestId"`
	Tag        string        `json:"tag,omitempty"`
	URL        string        `json:"url"`
	StatusCode int           `json:"statusCode,omitempty"`
	Kind       string        `json:"kind,omitempty"`
	Attempts   int           `json:"attempts"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Output     string        `json:"output,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Succeeded reports whether the upload was delivered to the success listener.
func (e Entry) Succeeded() bool {
	return e.Error == ""
}

// EntryFromOutcome converts a queue outcome into an entry stamped with now.
func EntryFromOutcome(o queue.Outcome) Entry {
	e := Entry{
		RequestID:  o.RequestID,
		Tag:        o.Tag,
		URL:        o.URL,
		StatusCode: o.StatusCode,
		Attempts:   o.Attempts,
		Duration:   o.Duration,
		CreatedAt:  time.Now().UTC(),
	}
	if o.Err != nil {
		e.Kind = o.Kind.String()
		e.Error = o.Err.Error()
	}
	return e
}

// Stats aggregates the stored entries.
type Stats struct {
	Total        int            `json:"total"`
	Succeeded    int            `json:"succeeded"`
	Failed       int            `json:"failed"`
	ByKind       map[string]int `json:"byKind,omitempty"`
	MeanDuration time.Duration  `json:"meanDuration"`
}

// Store is a history database.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open connects to the database named by connStr and creates the schema.
// Accepted forms are sqlite://path, sqlite:path and a bare file path.
func Open(connStr string) (*Store, error) {
	path, err := parseConnectionString(connStr)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serialises writers; one connection also keeps :memory: consistent.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, path: path, logger: slog.Default()}, nil
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record inserts e and returns its row id.
func (s *Store) Record(ctx context.Context, e Entry) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (request_id, tag, url, status_code, kind, attempts, duration_ms, error, output, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Tag, e.URL, e.StatusCode, e.Kind, e.Attempts,
		e.Duration.Milliseconds(), e.Error, e.Output, e.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert failed: %w", err)
	}
	return res.LastInsertId()
}

// SetOutput attaches the written file to a recorded upload.
func (s *Store) SetOutput(ctx context.Context, requestID, output string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE uploads SET output = ? WHERE request_id = ?`, output, requestID)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("no upload with request id %q", requestID)
	}
	return nil
}

// List returns the newest entries first. A limit of zero or less returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, request_id, tag, url, status_code, kind, attempts, duration_ms, error, output, created_at
		FROM uploads ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Tag, &e.URL, &e.StatusCode, &e.Kind,
			&e.Attempts, &ms, &e.Error, &e.Output, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return entries, nil
}

// Stats summarises every stored entry.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByKind: make(map[string]int)}

	var mean sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN error = '' THEN 1 ELSE 0 END), 0), AVG(duration_ms) FROM uploads`,
	).Scan(&stats.Total, &stats.Succeeded, &mean)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	stats.Failed = stats.Total - stats.Succeeded
	if mean.Valid {
		stats.MeanDuration = time.Duration(mean.Float64 * float64(time.Millisecond))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM uploads WHERE error != '' GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		stats.ByKind[kind] = n
	}
	return stats, rows.Err()
}

// Clear deletes every entry and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM uploads`)
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}
	return res.RowsAffected()
}

// Observer returns a queue observer that records every outcome. Write
// failures are logged rather than surfaced to the queue.
func (s *Store) Observer() queue.Observer {
	return func(o queue.Outcome) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.Record(ctx, EntryFromOutcome(o)); err != nil {
			s.logger.Warn("recording upload", "request", o.RequestID, "error", err)
		}
	}
}

// parseConnectionString extracts the sqlite file from connStr.
// Supported formats:
// - sqlite://path/to/history.db
// - sqlite:./history.db
// - path/to/history.db
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)
	if connStr == "" {
		return "", errors.New("empty connection string")
	}

	if strings.HasPrefix(connStr, "sqlite://") {
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	} else if strings.HasPrefix(connStr, "sqlite:") {
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	} else if i := strings.Index(connStr, "://"); i > 0 {
		return "", fmt.Errorf("unsupported database scheme: %s", connStr[:i])
	}

	if connStr == "" {
		return "", errors.New("connection string has no path")
	}
	return connStr, nil
}
