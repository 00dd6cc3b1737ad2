package codecache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultEntries is the MemoryStore capacity used when none is given.
const DefaultEntries = 256

// MemoryStore keeps the most recently used artifacts in memory.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns a store holding at most entries artifacts.
func NewMemoryStore(entries int) (*MemoryStore, error) {
	if entries <= 0 {
		entries = DefaultEntries
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		return nil, fmt.Errorf("codecache: creating LRU: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Get(key string) ([]byte, error) {
	data, ok := s.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Put(key string, data []byte) error {
	s.cache.Add(key, append([]byte(nil), data...))
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.cache.Remove(key)
	return nil
}

// Len returns the number of cached artifacts.
func (s *MemoryStore) Len() int { return s.cache.Len() }

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}
