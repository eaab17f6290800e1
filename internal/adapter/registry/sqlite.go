// Package registry persists the remotes the daemon has seen and a journal of
// their connection sessions.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"wiiblue/internal/domain"
)

// Store is a SQLite-backed remote registry.
type Store struct {
	db      *sql.DB
	entropy *rand.Rand
}

// Open opens (or creates) the registry database at dbPath and runs the schema
// migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate registry db: %w", err)
	}
	return &Store{
		db:      db,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS remotes (
			address       TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			first_seen    TEXT NOT NULL,
			last_seen     TEXT NOT NULL,
			connect_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS sessions (
			id              TEXT PRIMARY KEY,
			address         TEXT NOT NULL,
			connected_at    TEXT NOT NULL,
			disconnected_at TEXT,
			reason          TEXT,
			FOREIGN KEY (address) REFERENCES remotes (address)
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_address ON sessions (address);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Observe upserts a remote sighting: inserts on first sight, refreshes
// last_seen and name otherwise.
func (s *Store) Observe(_ context.Context, address, name string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO remotes (address, name, first_seen, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET last_seen = excluded.last_seen, name = excluded.name
	`, address, name, now, now)
	if err != nil {
		return domain.NewDomainError("Store.Observe", domain.ErrRegistryWrite, err.Error())
	}
	return nil
}

// OpenSession journals a new connection and bumps the remote's connect count.
// Returns the session ID (a ULID, so sessions sort chronologically).
func (s *Store) OpenSession(_ context.Context, address string) (string, error) {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return "", domain.NewDomainError("Store.OpenSession", domain.ErrRegistryWrite, err.Error())
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO sessions (id, address, connected_at) VALUES (?, ?, ?)",
		id, address, now,
	); err != nil {
		return "", domain.NewDomainError("Store.OpenSession", domain.ErrRegistryWrite, err.Error())
	}
	if _, err := tx.Exec(
		"UPDATE remotes SET connect_count = connect_count + 1 WHERE address = ?",
		address,
	); err != nil {
		return "", domain.NewDomainError("Store.OpenSession", domain.ErrRegistryWrite, err.Error())
	}
	if err := tx.Commit(); err != nil {
		return "", domain.NewDomainError("Store.OpenSession", domain.ErrRegistryWrite, err.Error())
	}
	return id, nil
}

// CloseSession finalizes a journaled session with its disconnect reason.
func (s *Store) CloseSession(_ context.Context, id string, reason domain.DisconnectReason) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		"UPDATE sessions SET disconnected_at = ?, reason = ? WHERE id = ? AND disconnected_at IS NULL",
		now, string(reason), id,
	)
	if err != nil {
		return domain.NewDomainError("Store.CloseSession", domain.ErrRegistryWrite, err.Error())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("Store.CloseSession", domain.ErrNotFound, id)
	}
	return nil
}

// Remotes lists every remote the daemon has ever seen, most recent first.
func (s *Store) Remotes(_ context.Context) ([]domain.RegistryEntry, error) {
	rows, err := s.db.Query(`
		SELECT address, name, first_seen, last_seen, connect_count
		FROM remotes ORDER BY last_seen DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query remotes: %w", err)
	}
	defer rows.Close()

	var entries []domain.RegistryEntry
	for rows.Next() {
		var e domain.RegistryEntry
		var firstSeen, lastSeen string
		if err := rows.Scan(&e.Address, &e.Name, &firstSeen, &lastSeen, &e.ConnectCount); err != nil {
			return nil, fmt.Errorf("scan remote: %w", err)
		}
		e.FirstSeen, _ = time.Parse(time.RFC3339, firstSeen)
		e.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Sessions lists the journaled sessions for one remote, newest first.
func (s *Store) Sessions(_ context.Context, address string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, address, connected_at, disconnected_at, reason
		FROM sessions WHERE address = ? ORDER BY id DESC LIMIT ?
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		var connectedAt string
		var disconnectedAt, reason sql.NullString
		if err := rows.Scan(&sess.ID, &sess.Address, &connectedAt, &disconnectedAt, &reason); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.ConnectedAt, _ = time.Parse(time.RFC3339, connectedAt)
		if disconnectedAt.Valid {
			sess.DisconnectedAt, _ = time.Parse(time.RFC3339, disconnectedAt.String)
		}
		if reason.Valid {
			sess.Reason = domain.DisconnectReason(reason.String)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// PruneSessions deletes finished sessions older than the retention window.
// Returns the number of rows removed.
func (s *Store) PruneSessions(_ context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339)
	res, err := s.db.Exec(
		"DELETE FROM sessions WHERE disconnected_at IS NOT NULL AND disconnected_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, domain.NewDomainError("Store.PruneSessions", domain.ErrRegistryWrite, err.Error())
	}
	return res.RowsAffected()
}
