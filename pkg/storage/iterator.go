package storage

import "bytes"

// IIterator walks a store in ascending key order. Key and Value are only
// valid until the next call to Next.
type IIterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// PrefixIterator narrows an ordered iterator to the keys under prefix and
// stops at the first key sorting past them.
type PrefixIterator struct {
	IIterator
	prefix []byte
	done   bool
}

func WithPrefix(iter IIterator, prefix []byte) *PrefixIterator {
	return &PrefixIterator{IIterator: iter, prefix: prefix}
}

func (it *PrefixIterator) Next() bool {
	for !it.done && it.IIterator.Next() {
		key := it.IIterator.Key()
		if bytes.HasPrefix(key, it.prefix) {
			return true
		}
		if bytes.Compare(key, it.prefix) > 0 {
			it.done = true
		}
	}
	return false
}

func collectKeys(iter IIterator) ([]string, error) {
	defer iter.Release()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	return keys, iter.Error()
}
