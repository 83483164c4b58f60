package pyplusplus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// SourceUnit is an identified chunk of Python source.
// Identity is the fingerprint, not the name: the same bytes under two paths
// share one cache entry.
type SourceUnit struct {
	Name        string
	Bytes       []byte
	Fingerprint string
}

// NewSourceUnit creates a SourceUnit and computes its fingerprint.
func NewSourceUnit(name string, src []byte) (SourceUnit, error) {
	if name == "" {
		return SourceUnit{}, ErrEmptySourceName
	}

	return SourceUnit{
		Name:        name,
		Bytes:       src,
		Fingerprint: Fingerprint(src),
	}, nil
}

// ReadSourceUnit reads a file from disk into a SourceUnit
func ReadSourceUnit(path string) (SourceUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SourceUnit{}, fmt.Errorf("failed to read source %s: %w", path, err)
	}

	return NewSourceUnit(path, data)
}

// Fingerprint returns the lowercase hex SHA-256 of src.
func Fingerprint(src []byte) string {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}
