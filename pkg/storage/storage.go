package storage

import (
	"errors"
	"fmt"
)

const (
	STORAGE_TYPE_LEVEL_DB  = "level"
	STORAGE_TYPE_BADGER_DB = "badger"
	STORAGE_TYPE_MEMORY_DB = "memory"
)

var ErrNotFound = errors.New("key not found")

type Storage interface {
	Get([]byte) ([]byte, error)
	Put([]byte, []byte) error
	Has([]byte) bool
	Delete([]byte) error
	BatchPut([][2][]byte) error
	Close() error
	Open() error
	// GetIterator walks keys in ascending byte order. Callers must Release it.
	GetIterator() IIterator
	GetAllKeys() ([]string, error)
}

// LoadDb opens a store of the given type. Memory stores ignore dbPath.
func LoadDb(dbPath string, dbType string) (Storage, error) {
	switch dbType {
	case STORAGE_TYPE_MEMORY_DB, "":
		return NewMemoryDb(), nil
	case STORAGE_TYPE_LEVEL_DB:
		return NewLevelDB(dbPath)
	case STORAGE_TYPE_BADGER_DB:
		return NewBadgerDB(dbPath)
	}
	return nil, fmt.Errorf("unknown storage type %q", dbType)
}
