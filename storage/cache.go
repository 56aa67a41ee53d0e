package storage

import (
	"fmt"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedDatabase keeps recently read values in an LRU in front of another
// Database. Writes go straight through and evict the touched keys.
type CachedDatabase struct {
	Database
	mu    sync.Mutex
	cache *lru.Cache[string, []byte]
}

// NewCachedDatabase wraps db with an LRU of the given size.
func NewCachedDatabase(db Database, size int) (*CachedDatabase, error) {
	if db == nil {
		return nil, fmt.Errorf("storage: cache requires a backing database")
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedDatabase{Database: db, cache: c}, nil
}

func (c *CachedDatabase) Get(key []byte) ([]byte, error) {
	if value, ok := c.cache.Get(string(key)); ok {
		return append([]byte(nil), value...), nil
	}
	value, err := c.Database.Get(key)
	if err != nil {
		return nil, err
	}
	c.cache.Add(string(key), append([]byte(nil), value...))
	return value, nil
}

func (c *CachedDatabase) Put(key []byte, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(string(key))
	return c.Database.Put(key, value)
}

func (c *CachedDatabase) Delete(key []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Remove(string(key))
	return c.Database.Delete(key)
}

func (c *CachedDatabase) NewBatch() Batch {
	return &cachedBatch{parent: c, inner: c.Database.NewBatch()}
}

// Cached reports whether key currently sits in the LRU.
func (c *CachedDatabase) Cached(key []byte) bool {
	return c.cache.Contains(string(key))
}

type cachedBatch struct {
	parent *CachedDatabase
	inner  Batch
	keys   []string
}

func (b *cachedBatch) Put(key []byte, value []byte) {
	b.keys = append(b.keys, string(key))
	b.inner.Put(key, value)
}

func (b *cachedBatch) Delete(key []byte) {
	b.keys = append(b.keys, string(key))
	b.inner.Delete(key)
}

func (b *cachedBatch) Len() int { return b.inner.Len() }

func (b *cachedBatch) Write() error {
	b.parent.mu.Lock()
	defer b.parent.mu.Unlock()
	for _, key := range b.keys {
		b.parent.cache.Remove(key)
	}
	return b.inner.Write()
}

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBadger  = "badger"
)

// Open constructs the named backend. A positive cacheSize wraps the result in
// a CachedDatabase.
func Open(backend, path string, cacheSize int) (Database, error) {
	var (
		db  Database
		err error
	)
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		db = NewMemDB()
	case BackendLevelDB:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("storage: leveldb requires a path")
		}
		db, err = NewLevelDB(path)
	case BackendBadger:
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("storage: badger requires a path")
		}
		db, err = NewBadgerDB(path)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", backend, err)
	}
	if cacheSize <= 0 {
		return db, nil
	}
	cached, err := NewCachedDatabase(db, cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cached, nil
}
