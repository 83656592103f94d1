package storage

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"

	_ "github.com/mattn/go-sqlite3"
)

// Compile-time interface check.
var _ Store = (*SQLite)(nil)

// SQLite is a Store backed by a single-table sqlite database. It survives
// process restarts, which is what the session id and device fingerprint
// cache need.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) a sqlite-backed store at dbPath.
// If dbPath is empty, defaults to "./data/syncboard.db".
func NewSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		dbPath = "./data/syncboard.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	return err
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetString returns the value for key, or ("", false) if absent.
func (s *SQLite) GetString(key string) (string, bool) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return "", false
	}
	return v, true
}

// SetString writes a string value.
func (s *SQLite) SetString(key, value string) error {
	_, err := s.db.Exec(`
	INSERT INTO kv (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetInt64 returns the numeric value for key, or (0, false) if the key is
// absent or not numeric.
func (s *SQLite) GetInt64(key string) (int64, bool) {
	v, ok := s.GetString(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SetInt64 writes a numeric value.
func (s *SQLite) SetInt64(key string, value int64) error {
	return s.SetString(key, strconv.FormatInt(value, 10))
}

// Delete removes a key.
func (s *SQLite) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}
