package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

type BadgerDB struct {
	db       *badger.DB
	path     string
	inMemory bool
	mu       sync.RWMutex
}

func NewBadgerDB(path string) (*BadgerDB, error) {
	if path == "" {
		return nil, fmt.Errorf("invalid path: path is empty")
	}
	bdb := &BadgerDB{path: path}
	if err := bdb.Open(); err != nil {
		return nil, err
	}
	return bdb, nil
}

// NewInMemoryBadgerDB keeps everything in RAM; Close discards the data.
func NewInMemoryBadgerDB() (*BadgerDB, error) {
	bdb := &BadgerDB{inMemory: true}
	if err := bdb.Open(); err != nil {
		return nil, err
	}
	return bdb, nil
}

func (bdb *BadgerDB) options() badger.Options {
	if bdb.inMemory {
		return badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	return badger.DefaultOptions(bdb.path).WithLogger(nil)
}

func (bdb *BadgerDB) handle() (*badger.DB, error) {
	bdb.mu.RLock()
	defer bdb.mu.RUnlock()
	if bdb.db == nil {
		return nil, fmt.Errorf("badger db %s is closed", bdb.path)
	}
	return bdb.db, nil
}

func (bdb *BadgerDB) Get(key []byte) ([]byte, error) {
	db, err := bdb.handle()
	if err != nil {
		return nil, err
	}
	var value []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("[BadgerDB] %w: %x", ErrNotFound, key)
	}
	return value, err
}

func (bdb *BadgerDB) Put(key, value []byte) error {
	db, err := bdb.handle()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

func (bdb *BadgerDB) Has(key []byte) bool {
	db, err := bdb.handle()
	if err != nil {
		return false
	}
	err = db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	return err == nil
}

func (bdb *BadgerDB) Delete(key []byte) error {
	db, err := bdb.handle()
	if err != nil {
		return err
	}
	return db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

func (bdb *BadgerDB) BatchPut(kvs [][2][]byte) error {
	db, err := bdb.handle()
	if err != nil {
		return err
	}
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, kv := range kvs {
		if err := wb.Set(kv[0], kv[1]); err != nil {
			return fmt.Errorf("failed to set key %x: %w", kv[0], err)
		}
	}
	return wb.Flush()
}

func (bdb *BadgerDB) Open() error {
	bdb.mu.Lock()
	defer bdb.mu.Unlock()
	if bdb.db != nil {
		return nil
	}
	db, err := badger.Open(bdb.options())
	if err != nil {
		return fmt.Errorf("failed to open badger db %s: %w", bdb.path, err)
	}
	bdb.db = db
	return nil
}

func (bdb *BadgerDB) Close() error {
	bdb.mu.Lock()
	defer bdb.mu.Unlock()
	if bdb.db == nil {
		return nil
	}
	err := bdb.db.Close()
	bdb.db = nil
	return err
}

func (bdb *BadgerDB) Path() string { return bdb.path }

type BadgerIterator struct {
	iterator *badger.Iterator
	txn      *badger.Txn
	started  bool
	err      error
}

func (it *BadgerIterator) Next() bool {
	if !it.started {
		it.started = true
		it.iterator.Rewind()
	} else if it.iterator.Valid() {
		it.iterator.Next()
	}
	return it.iterator.Valid()
}

func (it *BadgerIterator) Key() []byte {
	if it.iterator.Valid() {
		return it.iterator.Item().KeyCopy(nil)
	}
	return nil
}

func (it *BadgerIterator) Value() []byte {
	if !it.iterator.Valid() {
		return nil
	}
	value, err := it.iterator.Item().ValueCopy(nil)
	if err != nil {
		it.err = err
		return nil
	}
	return value
}

func (it *BadgerIterator) Release() {
	it.iterator.Close()
	it.txn.Discard()
}

func (it *BadgerIterator) Error() error { return it.err }

func (bdb *BadgerDB) GetIterator() IIterator {
	db, err := bdb.handle()
	if err != nil {
		return &errIterator{err: err}
	}
	txn := db.NewTransaction(false)
	return &BadgerIterator{
		iterator: txn.NewIterator(badger.DefaultIteratorOptions),
		txn:      txn,
	}
}

func (bdb *BadgerDB) GetAllKeys() ([]string, error) {
	return collectKeys(bdb.GetIterator())
}
