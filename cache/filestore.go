package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/shibukawa/pyplusplus"
	"github.com/shibukawa/pyplusplus/rewriter"
)

// FileStore keeps one JSON file per entry under <root>/v1/<fp[:2]>/<fp>.json
type FileStore struct {
	dir string
}

// NewFileStore creates the versioned directory and checks that it is writable
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, ErrNoCacheDir)
	}

	dir := VersionDir(root)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: failed to create cache directory: %w", pyplusplus.ErrCacheIO, err)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: cache directory is not writable: %w", pyplusplus.ErrCacheIO, err)
	}

	probe.Close()
	os.Remove(probe.Name())

	return &FileStore{dir: dir}, nil
}

// VersionDir returns the directory entries of the current format live in
func VersionDir(root string) string {
	return filepath.Join(root, FormatVersion)
}

func (s *FileStore) path(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint[:2], fingerprint+".json")
}

func (s *FileStore) Load(fingerprint string) (*rewriter.Unit, error) {
	if err := validFingerprint(fingerprint); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(fingerprint))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return decodeEntry(fingerprint, data)
}

// Save writes the entry to a temporary file and renames it into place, so
// readers never observe a partial entry.
func (s *FileStore) Save(fingerprint string, unit *rewriter.Unit) error {
	if err := validFingerprint(fingerprint); err != nil {
		return err
	}

	data, err := encodeEntry(fingerprint, unit)
	if err != nil {
		return err
	}

	target := s.path(fingerprint)

	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(target), fingerprint+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", pyplusplus.ErrCacheIO, err)
	}

	tmpPath := tmpFile.Name()
	cleanup := func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}

	if _, err := tmpFile.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: failed to write temp file: %w", pyplusplus.ErrCacheIO, err)
	}

	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to close temp file: %w", pyplusplus.ErrCacheIO, err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to replace entry: %w", pyplusplus.ErrCacheIO, err)
	}

	return nil
}

// Clear removes every entry of the current format
func (s *FileStore) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, err)
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, err)
		}
	}

	return nil
}

func (s *FileStore) Stats() (StoreStats, error) {
	var stats StoreStats

	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		stats.Entries++
		stats.Bytes += info.Size()

		return nil
	})
	if err != nil {
		return StoreStats{}, fmt.Errorf("%w: %w", pyplusplus.ErrCacheIO, err)
	}

	return stats, nil
}

func (s *FileStore) Close() error {
	return nil
}
