package storage

import (
	"fmt"
	"sort"
	"sync"
)

type MemoryDB struct {
	db map[string][]byte
	sync.RWMutex
}

// MemoryDbIterator walks a copy of the keys taken at creation time.
type MemoryDbIterator struct {
	memoryDB *MemoryDB
	keys     []string
	idx      int
}

func NewMemoryDbIterator(memoryDB *MemoryDB) *MemoryDbIterator {
	memoryDB.RLock()
	keys := make([]string, 0, len(memoryDB.db))
	for key := range memoryDB.db {
		keys = append(keys, key)
	}
	memoryDB.RUnlock()
	sort.Strings(keys)
	return &MemoryDbIterator{memoryDB: memoryDB, keys: keys}
}

func (it *MemoryDbIterator) Next() bool {
	if it.idx == len(it.keys) {
		return false
	}
	it.idx++
	return true
}

func (it *MemoryDbIterator) Key() []byte {
	return []byte(it.keys[it.idx-1])
}

func (it *MemoryDbIterator) Value() []byte {
	it.memoryDB.RLock()
	defer it.memoryDB.RUnlock()
	return it.memoryDB.db[it.keys[it.idx-1]]
}

func (it *MemoryDbIterator) Release()     {}
func (it *MemoryDbIterator) Error() error { return nil }

func NewMemoryDb() *MemoryDB {
	return &MemoryDB{db: make(map[string][]byte)}
}

func (kv *MemoryDB) Get(key []byte) ([]byte, error) {
	kv.RLock()
	defer kv.RUnlock()
	if v, ok := kv.db[string(key)]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("[MemKV] %w: %x", ErrNotFound, key)
}

func (kv *MemoryDB) Put(key, value []byte) error {
	kv.Lock()
	defer kv.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	kv.db[string(key)] = stored
	return nil
}

func (kv *MemoryDB) Has(key []byte) bool {
	kv.RLock()
	defer kv.RUnlock()
	_, ok := kv.db[string(key)]
	return ok
}

func (kv *MemoryDB) Delete(key []byte) error {
	kv.Lock()
	defer kv.Unlock()
	if _, ok := kv.db[string(key)]; !ok {
		return fmt.Errorf("[MemKV] %w: %x", ErrNotFound, key)
	}
	delete(kv.db, string(key))
	return nil
}

func (kv *MemoryDB) BatchPut(kvs [][2][]byte) error {
	for i := range kvs {
		if err := kv.Put(kvs[i][0], kvs[i][1]); err != nil {
			return err
		}
	}
	return nil
}

func (kv *MemoryDB) Close() error { return nil }

func (kv *MemoryDB) Open() error { return nil }

func (kv *MemoryDB) Size() int {
	kv.RLock()
	defer kv.RUnlock()
	return len(kv.db)
}

func (kv *MemoryDB) GetIterator() IIterator {
	return NewMemoryDbIterator(kv)
}

func (kv *MemoryDB) GetAllKeys() ([]string, error) {
	return collectKeys(kv.GetIterator())
}
