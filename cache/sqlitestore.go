package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/rewriter"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS entries (
	fingerprint TEXT PRIMARY KEY,
	payload     BLOB NOT NULL,
	created_at  INTEGER NOT NULL
)`

// SQLiteStore keeps entries in <root>/v1/cache.db.
// WAL mode lets several interpreter sessions share the database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates if needed) the cache database
func NewSQLiteStore(root string) (*SQLiteStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, ErrNoCacheDir)
	}

	dir := VersionDir(root)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: failed to create cache directory: %w", pyplusplus.ErrCacheIO, err)
	}

	dsn := filepath.Join(dir, "cache.db") + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open cache database: %w", pyplusplus.ErrCacheIO, err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to prepare cache database: %w", pyplusplus.ErrCacheIO, err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(fingerprint string) (*rewriter.Unit, error) {
	if err := validFingerprint(fingerprint); err != nil {
		return nil, err
	}

	var payload []byte

	err := s.db.QueryRow(`SELECT payload FROM entries WHERE fingerprint = ?`, fingerprint).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return decodeEntry(fingerprint, payload)
}

func (s *SQLiteStore) Save(fingerprint string, unit *rewriter.Unit) error {
	if err := validFingerprint(fingerprint); err != nil {
		return err
	}

	payload, err := encodeEntry(fingerprint, unit)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO entries (fingerprint, payload, created_at) VALUES (?, ?, ?)`,
		fingerprint, payload, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to store entry: %w", pyplusplus.ErrCacheIO, err)
	}

	return nil
}

func (s *SQLiteStore) Clear() error {
	if _, err := s.db.Exec(`DELETE FROM entries`); err != nil {
		return fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, err)
	}

	return nil
}

func (s *SQLiteStore) Stats() (StoreStats, error) {
	var stats StoreStats

	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(LENGTH(payload)), 0) FROM entries`).Scan(&stats.Entries, &stats.Bytes)
	if err != nil {
		return StoreStats{}, fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, err)
	}

	return stats, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
