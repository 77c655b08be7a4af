package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const (
	entriesBucket = "entries"
	metaBucket    = "metadata"
	schemaVersion = 1
)

// ErrNotFound wraps the error BoltCache.Get returns when a stored record
// fails to unmarshal, so callers can distinguish a corrupt record from a
// genuine cache miss (the latter is reported through the plain
// (Entry, bool, error) return, not an error at all) via errors.Is.
var ErrNotFound = errors.New("cache entry not found")

// BoltCache is a durable MetadataStore backed by a bbolt file, adapted
// from tdm's download-record repository to store conditional
// fetch metadata instead of download state. It can stand alone or front a
// MemoryCache via WithMemory for a fast hit path.
type BoltCache struct {
	db     *bbolt.DB
	memory *MemoryCache
}

// NewBoltCache opens (creating if necessary) a bbolt database at dbPath.
func NewBoltCache(dbPath string) (*BoltCache, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	c := &BoltCache{db: db}
	if err := c.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

// WithMemory layers an in-memory LRU in front of this BoltCache. Reads hit
// the LRU first; writes go to both so a restart still finds them on disk.
func (c *BoltCache) WithMemory(m *MemoryCache) *BoltCache {
	c.memory = m
	return c
}

func (c *BoltCache) initialize() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(entriesBucket)); err != nil {
			return fmt.Errorf("create entries bucket: %w", err)
		}

		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("create metadata bucket: %w", err)
		}

		return meta.Put([]byte("schema_version"), []byte(fmt.Sprintf("%d", schemaVersion)))
	})
}

func (c *BoltCache) Get(url string) (Entry, bool, error) {
	if c.memory != nil {
		if e, ok, _ := c.memory.Get(url); ok {
			return e, true, nil
		}
	}

	key := []byte(keyFor(url))

	var data []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}
		if v := b.Get(key); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, err
	}
	if data == nil {
		return Entry{}, false, nil
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("unmarshal cache entry: %w: %w", ErrNotFound, err)
	}

	if c.memory != nil {
		c.memory.Put(url, e)
	}

	return e, true, nil
}

func (c *BoltCache) Put(url string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	err = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}
		return b.Put([]byte(keyFor(url)), data)
	})
	if err != nil {
		return err
	}

	if c.memory != nil {
		return c.memory.Put(url, entry)
	}
	return nil
}

func (c *BoltCache) Delete(url string) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(entriesBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", entriesBucket)
		}
		return b.Delete([]byte(keyFor(url)))
	})
	if err != nil {
		return err
	}

	if c.memory != nil {
		return c.memory.Delete(url)
	}
	return nil
}

// Close closes the underlying database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}
