package state

import (
	"errors"
	"fmt"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"loyaltyledger/storage"
)

// KV is the read/write surface shared by the Manager and the staged view
// handed to Atomic callbacks.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Manager stores RLP-encoded values in a key-value database. Keys are hashed
// with Keccak256 so callers can build them from arbitrary identifiers.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut encodes value with RLP and stores it under the supplied key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, err := m.db.Get(kvKey(key))
	m.mu.RUnlock()
	return decodeValue(data, err, out)
}

// KVDelete removes the key from state. Removing a missing key is a no-op.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Delete(kvKey(key))
}

// Atomic runs fn against a staged view of state while holding the manager's
// write lock. Writes made through the view are visible to later reads inside
// fn and are committed as one batch only when fn returns nil.
func (m *Manager) Atomic(fn func(kv KV) error) error {
	return m.AtomicThen(fn, nil)
}

// AtomicThen behaves like Atomic and, once the batch is written, calls
// committed before releasing the write lock. Hooks therefore observe commits
// in the order they happened. committed must not call back into the manager.
func (m *Manager) AtomicThen(fn func(kv KV) error, committed func()) error {
	if fn == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &stagedKV{db: m.db, writes: make(map[string]*[]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) > 0 {
		batch := m.db.NewBatch()
		for _, hashed := range tx.order {
			value := tx.writes[hashed]
			if value == nil {
				batch.Delete([]byte(hashed))
				continue
			}
			batch.Put([]byte(hashed), *value)
		}
		if err := batch.Write(); err != nil {
			return err
		}
	}
	if committed != nil {
		committed()
	}
	return nil
}

// View runs fn under the read lock so every read inside it sees the same
// committed state. Writes through the view fail with ErrReadOnly.
func (m *Manager) View(fn func(kv KV) error) error {
	if fn == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(readOnlyKV{db: m.db})
}

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("kv: read-only view")

type readOnlyKV struct {
	db storage.Database
}

func (r readOnlyKV) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := r.db.Get(kvKey(key))
	return decodeValue(data, err, out)
}

func (readOnlyKV) KVPut([]byte, interface{}) error { return ErrReadOnly }

func (readOnlyKV) KVDelete([]byte) error { return ErrReadOnly }

// stagedKV buffers writes keyed by the hashed storage key. A nil entry marks a
// deletion.
type stagedKV struct {
	db     storage.Database
	writes map[string]*[]byte
	order  []string
}

func (s *stagedKV) stage(hashed []byte, value *[]byte) {
	key := string(hashed)
	if _, seen := s.writes[key]; !seen {
		s.order = append(s.order, key)
	}
	s.writes[key] = value
}

func (s *stagedKV) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	if staged, ok := s.writes[string(hashed)]; ok {
		if staged == nil {
			return false, nil
		}
		return decodeValue(*staged, nil, out)
	}
	data, err := s.db.Get(hashed)
	return decodeValue(data, err, out)
}

func (s *stagedKV) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.stage(kvKey(key), &encoded)
	return nil
}

func (s *stagedKV) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	s.stage(kvKey(key), nil)
	return nil
}

func decodeValue(data []byte, err error, out interface{}) (bool, error) {
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
