// Package localstore is the client's durable key/value file: the current
// session code, resume keys and the flags a viewer has already seen.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const (
	// SessionCodeKey holds the broadcaster's current session code.
	SessionCodeKey = "gridiron-session-code"

	seenFlagsPrefix = "seen-flags-"
	resumeKeyPrefix = "resume-key-"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);`

// Store is a SQLite-backed key/value store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path. ":memory:" is accepted for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Get returns the value for key, or "" when it is unset.
func (s *Store) Get(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Set stores value under key.
func (s *Store) Set(key, value string) error {
	const q = `INSERT INTO kv (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value;`
	if _, err := s.db.Exec(q, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) SessionCode() (string, error) { return s.Get(SessionCodeKey) }

func (s *Store) SaveSessionCode(code string) error { return s.Set(SessionCodeKey, code) }

func (s *Store) ClearSessionCode() error { return s.Delete(SessionCodeKey) }

func (s *Store) ResumeKey(code string) (string, error) { return s.Get(resumeKeyPrefix + code) }

func (s *Store) SaveResumeKey(code, key string) error { return s.Set(resumeKeyPrefix+code, key) }

// LoadSeenFlags returns the stored flag keys for a session. A corrupt value
// is treated as empty.
func (s *Store) LoadSeenFlags(code string) ([]string, error) {
	raw, err := s.Get(seenFlagsPrefix + code)
	if err != nil || raw == "" {
		return nil, err
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, nil
	}
	return keys, nil
}

// SaveSeenFlags stores keys as a JSON array.
func (s *Store) SaveSeenFlags(code string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	b, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	return s.Set(seenFlagsPrefix+code, string(b))
}
