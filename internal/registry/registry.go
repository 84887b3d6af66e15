// Package registry keeps a crash-forensic index of sessions in sqlite: a
// diagnostic record of what was open and when, used for post-mortem
// debugging after an unclean daemon exit. It is never consulted to decide
// correctness — the in-memory Service and the on-disk snapshot log are
// authoritative; this is strictly an audit trail.
package registry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Registry wraps a sqlite database recording session lifecycle events.
type Registry struct {
	db *sql.DB
}

// Open creates (or opens) the registry database at dsn and ensures its
// schema exists.
func Open(dsn string) (*Registry, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: set WAL mode: %w", err)
	}

	r := &Registry{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the underlying database handle.
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) migrate() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		file_url   TEXT NOT NULL,
		opened_at  DATETIME NOT NULL,
		last_touch DATETIME NOT NULL,
		closed_at  DATETIME
	)`)
	if err != nil {
		return fmt.Errorf("registry: create schema: %w", err)
	}
	return nil
}

// RecordOpen inserts a row for a newly opened session, replacing any prior
// row with the same id (open regenerates sessionId, so collisions are not
// expected, but a crash-then-reuse edge case could still produce one).
func (r *Registry) RecordOpen(sessionID, fileURL string, at time.Time) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (session_id, file_url, opened_at, last_touch) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET file_url=excluded.file_url, opened_at=excluded.opened_at, last_touch=excluded.last_touch, closed_at=NULL`,
		sessionID, fileURL, at, at,
	)
	if err != nil {
		return fmt.Errorf("registry: record open: %w", err)
	}
	return nil
}

// Touch updates a session's last_touch timestamp.
func (r *Registry) Touch(sessionID string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE sessions SET last_touch = ? WHERE session_id = ?`, at, sessionID)
	if err != nil {
		return fmt.Errorf("registry: touch: %w", err)
	}
	return nil
}

// RecordClose marks a session closed.
func (r *Registry) RecordClose(sessionID string, at time.Time) error {
	_, err := r.db.Exec(`UPDATE sessions SET closed_at = ? WHERE session_id = ?`, at, sessionID)
	if err != nil {
		return fmt.Errorf("registry: record close: %w", err)
	}
	return nil
}

// SessionRecord is one row of the registry, used by diagnostic tooling
// (edc status, crash forensics) to report what the daemon last knew.
type SessionRecord struct {
	SessionID string
	FileURL   string
	OpenedAt  time.Time
	LastTouch time.Time
	ClosedAt  sql.NullTime
}

// OpenSessions returns every row whose closed_at is still null: sessions
// the registry believes are live, which after an unclean daemon exit is a
// forensic hint about what was open at crash time.
func (r *Registry) OpenSessions() ([]SessionRecord, error) {
	rows, err := r.db.Query(`SELECT session_id, file_url, opened_at, last_touch, closed_at FROM sessions WHERE closed_at IS NULL ORDER BY last_touch DESC`)
	if err != nil {
		return nil, fmt.Errorf("registry: query open sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.SessionID, &rec.FileURL, &rec.OpenedAt, &rec.LastTouch, &rec.ClosedAt); err != nil {
			return nil, fmt.Errorf("registry: scan session row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
