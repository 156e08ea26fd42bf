// Package journal keeps a SQLite log of save outcomes.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/lenstree/internal/save"
)

const schema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	at    INTEGER NOT NULL,
	file  TEXT NOT NULL,
	state TEXT NOT NULL,
	kind  TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_outcomes_file ON outcomes(file, at);
`

// Journal is an append-only outcome log. It implements save.Recorder.
type Journal struct {
	db *sql.DB
}

var _ save.Recorder = (*Journal)(nil)

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record appends one outcome.
func (j *Journal) Record(ctx context.Context, at time.Time, o save.Outcome) error {
	msg := ""
	if o.Err != nil {
		msg = o.Err.Error()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO outcomes (at, file, state, kind, error) VALUES (?, ?, ?, ?, ?)`,
		at.UnixNano(), o.File, o.State.String(), o.Kind, msg)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", o.File, err)
	}
	return nil
}

// Entry is one journal row.
type Entry struct {
	At    time.Time `json:"at"`
	File  string    `json:"file"`
	State string    `json:"state"`
	Kind  string    `json:"kind,omitempty"`
	Error string    `json:"error,omitempty"`
}

// Recent returns up to limit entries, newest first. A non-empty file
// restricts the result to that file.
func (j *Journal) Recent(ctx context.Context, file string, limit int) ([]Entry, error) {
	q := `SELECT at, file, state, kind, error FROM outcomes`
	var args []any
	if file != "" {
		q += ` WHERE file = ?`
		args = append(args, file)
	}
	q += ` ORDER BY at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&at, &e.File, &e.State, &e.Kind, &e.Error); err != nil {
			return nil, err
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}
