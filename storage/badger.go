package storage

import (
	"errors"

	"github.com/dgraph-io/badger"
)

// BadgerDB is a persistent key-value store backed by Badger.
type BadgerDB struct {
	db *badger.DB
}

// NewBadgerDB creates or opens a Badger database in the supplied directory.
func NewBadgerDB(dir string) (*BadgerDB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerDB{db: db}, nil
}

func (bdb *BadgerDB) Put(key []byte, value []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (bdb *BadgerDB) Get(key []byte) ([]byte, error) {
	var out []byte
	err := bdb.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	return out, err
}

func (bdb *BadgerDB) Delete(key []byte) error {
	return bdb.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (bdb *BadgerDB) NewBatch() Batch {
	return &badgerBatch{db: bdb.db}
}

func (bdb *BadgerDB) Close() {
	bdb.db.Close()
}

// badgerBatch applies its operations inside a single read-write transaction.
type badgerBatch struct {
	db  *badger.DB
	ops []batchOp
}

func (b *badgerBatch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
}

func (b *badgerBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

func (b *badgerBatch) Len() int { return len(b.ops) }

func (b *badgerBatch) Write() error {
	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range b.ops {
			if op.delete {
				if err := txn.Delete(op.key); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
}
