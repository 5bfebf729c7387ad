package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/meta-node-blockchain/benor/pkg/logger"
)

type LevelDB struct {
	db     *leveldb.DB
	closed bool
	path   string
	mu     sync.RWMutex
}

func NewLevelDB(path string) (*LevelDB, error) {
	if path == "" {
		return nil, fmt.Errorf("invalid path: path is empty")
	}
	db, err := leveldb.OpenFile(path, levelOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: db, path: path}, nil
}

func levelOptions() *opt.Options {
	return &opt.Options{BlockCacheCapacity: 8 * opt.MiB}
}

func (ldb *LevelDB) handle() (*leveldb.DB, error) {
	ldb.mu.RLock()
	defer ldb.mu.RUnlock()
	if ldb.closed {
		return nil, leveldb.ErrClosed
	}
	return ldb.db, nil
}

func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	db, err := ldb.handle()
	if err != nil {
		return nil, err
	}
	value, err := db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("[LevelDB] %w: %x", ErrNotFound, key)
	}
	return value, err
}

func (ldb *LevelDB) Put(key, value []byte) error {
	db, err := ldb.handle()
	if err != nil {
		return err
	}
	return db.Put(key, value, nil)
}

func (ldb *LevelDB) Has(key []byte) bool {
	db, err := ldb.handle()
	if err != nil {
		return false
	}
	ok, err := db.Has(key, nil)
	return err == nil && ok
}

func (ldb *LevelDB) Delete(key []byte) error {
	db, err := ldb.handle()
	if err != nil {
		return err
	}
	return db.Delete(key, nil)
}

func (ldb *LevelDB) BatchPut(kvs [][2][]byte) error {
	db, err := ldb.handle()
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	for _, kv := range kvs {
		batch.Put(kv[0], kv[1])
	}
	return db.Write(batch, nil)
}

func (ldb *LevelDB) Open() error {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	if !ldb.closed {
		return nil
	}
	db, err := leveldb.OpenFile(ldb.path, levelOptions())
	if err != nil {
		return fmt.Errorf("failed to reopen leveldb at %s: %w", ldb.path, err)
	}
	ldb.db = db
	ldb.closed = false
	return nil
}

func (ldb *LevelDB) Close() error {
	ldb.mu.Lock()
	defer ldb.mu.Unlock()
	if ldb.closed {
		return nil
	}
	ldb.closed = true
	if err := ldb.db.Close(); err != nil {
		logger.Warn("Error closing leveldb %s: %v", ldb.path, err)
		return err
	}
	return nil
}

// GetIterator returns goleveldb's iterator, which already satisfies
// IIterator. Key and Value buffers are only valid until the next call.
func (ldb *LevelDB) GetIterator() IIterator {
	db, err := ldb.handle()
	if err != nil {
		return &errIterator{err: err}
	}
	return db.NewIterator(nil, nil)
}

func (ldb *LevelDB) GetAllKeys() ([]string, error) {
	return collectKeys(ldb.GetIterator())
}

func (ldb *LevelDB) Path() string { return ldb.path }

type errIterator struct{ err error }

func (it *errIterator) Next() bool    { return false }
func (it *errIterator) Key() []byte   { return nil }
func (it *errIterator) Value() []byte { return nil }
func (it *errIterator) Release()      {}
func (it *errIterator) Error() error  { return it.err }
