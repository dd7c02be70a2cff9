package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/arlert/devmon/internal/history"
)

// Sink writes lifecycle records to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &Sink{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// Simple audit table; timestamp defaults to now when not provided.
	stmt := `CREATE TABLE IF NOT EXISTS run_history(
		timestamp TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		type TEXT NOT NULL,
		script TEXT NOT NULL,
		pid INTEGER NOT NULL,
		detail TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, r history.Record) error {
	occur := r.OccurredAt.UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_history(timestamp, type, script, pid, detail)
		VALUES(?, ?, ?, ?, ?);`,
		occur, string(r.Type), r.Script, r.PID, r.Detail)
	return err
}

// List returns up to limit records, newest first.
func (s *Sink) List(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, type, script, pid, COALESCE(detail, '')
		FROM run_history ORDER BY timestamp DESC, rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Record
	for rows.Next() {
		var r history.Record
		var typ string
		if err := rows.Scan(&r.OccurredAt, &typ, &r.Script, &r.PID, &r.Detail); err != nil {
			return nil, err
		}
		r.Type = history.EventType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
