package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryCache is an in-process MetadataStore backed by an LRU of bounded
// size, keyed by a SHA-256 hash of the URL. Cheap and fast, but its
// contents don't survive a process restart; pair it with BoltCache when
// that matters.
type MemoryCache struct {
	lru *lru.Cache[string, Entry]
}

// NewMemoryCache creates a MemoryCache holding at most capacity entries.
func NewMemoryCache(capacity int) (*MemoryCache, error) {
	if capacity <= 0 {
		capacity = 512
	}

	c, err := lru.New[string, Entry](capacity)
	if err != nil {
		return nil, err
	}

	return &MemoryCache{lru: c}, nil
}

func (m *MemoryCache) Get(url string) (Entry, bool, error) {
	e, ok := m.lru.Get(keyFor(url))
	return e, ok, nil
}

func (m *MemoryCache) Put(url string, entry Entry) error {
	m.lru.Add(keyFor(url), entry)
	return nil
}

func (m *MemoryCache) Delete(url string) error {
	m.lru.Remove(keyFor(url))
	return nil
}
