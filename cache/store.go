package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/rewriter"
)

// FormatVersion names the on-disk layout. Entries written by another format
// live in a sibling directory and are never read.
const FormatVersion = "v1"

// Sentinel errors
var (
	ErrNotFound       = errors.New("cache entry not found")
	ErrCorrupt        = errors.New("cache entry is corrupt")
	ErrBadFingerprint = errors.New("invalid fingerprint")
	ErrNoCacheDir     = errors.New("no cache directory configured")
)

// Store persists rewritten units across processes
type Store interface {
	// Load returns ErrNotFound for a missing entry and ErrCorrupt for an unreadable one
	Load(fingerprint string) (*rewriter.Unit, error)
	Save(fingerprint string, unit *rewriter.Unit) error
	Clear() error
	Stats() (StoreStats, error)
	Close() error
}

// StoreStats describes the persisted entries
type StoreStats struct {
	Entries int
	Bytes   int64
}

// OpenStore opens the store for a configured backend
func OpenStore(backend, dir string) (Store, error) {
	switch backend {
	case pyplusplus.BackendMemory:
		return NewMemoryStore(), nil
	case pyplusplus.BackendSQLite:
		return NewSQLiteStore(dir)
	default:
		return NewFileStore(dir)
	}
}

type entry struct {
	Version     string         `json:"version"`
	Fingerprint string         `json:"fingerprint"`
	Unit        *rewriter.Unit `json:"unit"`
}

func encodeEntry(fingerprint string, unit *rewriter.Unit) ([]byte, error) {
	data, err := json.Marshal(entry{
		Version:     FormatVersion,
		Fingerprint: fingerprint,
		Unit:        unit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode entry %s: %w", pyplusplus.ErrCacheIO, fingerprint, err)
	}

	return data, nil
}

func decodeEntry(fingerprint string, data []byte) (*rewriter.Unit, error) {
	var e entry

	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, fingerprint, err)
	}

	if e.Version != FormatVersion || e.Fingerprint != fingerprint || e.Unit == nil {
		return nil, fmt.Errorf("%w: %s: header mismatch", ErrCorrupt, fingerprint)
	}

	return e.Unit, nil
}

func validFingerprint(fingerprint string) error {
	if len(fingerprint) < 2 {
		return fmt.Errorf("%w: %q", ErrBadFingerprint, fingerprint)
	}

	for _, r := range fingerprint {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			return fmt.Errorf("%w: %q", ErrBadFingerprint, fingerprint)
		}
	}

	return nil
}
