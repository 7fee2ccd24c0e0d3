// ABOUTME: SQLite implementation of the snapshot Store using modernc.org/sqlite
// ABOUTME: Persists per-session snapshot blobs with automatic schema creation

package snapshot

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a SQLite database. Snapshots are keyed
// by (session_id, key) so multiple sessions can share one database file.
type SQLiteStore struct {
	db        *sql.DB
	sessionID string
	logger    *slog.Logger
}

// NewSQLiteStore opens (or creates) a snapshot database at path, scoped
// to the given session ID. Parent directories are created if needed.
func NewSQLiteStore(path, sessionID string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "snapshot")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}

	// WAL mode keeps writes cheap for the write-through dedupe snapshot
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:        db,
		sessionID: sessionID,
		logger:    logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("snapshot store opened", "path", path, "session_id", sessionID)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_snapshots (
			session_id TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (session_id, key)
		)`
	_, err := s.db.Exec(schema)
	return err
}

// Read returns the value stored under key for this session.
func (s *SQLiteStore) Read(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow(
		"SELECT value FROM session_snapshots WHERE session_id = ? AND key = ?",
		s.sessionID, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %q: %w", key, err)
	}
	return value, nil
}

// Write stores value under key for this session, replacing any previous value.
func (s *SQLiteStore) Write(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO session_snapshots (session_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.sessionID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing snapshot %q: %w", key, err)
	}
	return nil
}

// Evict removes key for this session. Evicting a missing key is not an error.
func (s *SQLiteStore) Evict(key string) error {
	_, err := s.db.Exec(
		"DELETE FROM session_snapshots WHERE session_id = ? AND key = ?",
		s.sessionID, key,
	)
	if err != nil {
		return fmt.Errorf("evicting snapshot %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
