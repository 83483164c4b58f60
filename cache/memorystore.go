package cache

import (
	"sync"

	"github.com/shibukawa/pyplusplus/rewriter"
)

// MemoryStore keeps entries for the lifetime of the process
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*rewriter.Unit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*rewriter.Unit)}
}

func (s *MemoryStore) Load(fingerprint string) (*rewriter.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unit, ok := s.entries[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}

	return unit, nil
}

func (s *MemoryStore) Save(fingerprint string, unit *rewriter.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[fingerprint] = unit

	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*rewriter.Unit)

	return nil
}

func (s *MemoryStore) Stats() (StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := StoreStats{Entries: len(s.entries)}
	for _, unit := range s.entries {
		stats.Bytes += int64(len(unit.Source))
	}

	return stats, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
