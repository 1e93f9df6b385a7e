// Package leveldbkv implements a flat key-value store on top of
// github.com/syndtr/goleveldb, used for data that doesn't need the
// ledger's multi-table transactional contract: the bootstrap peerstore and
// other small auxiliary indices.
package leveldbkv

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// KV is a flat, namespaced key-value store.
type KV struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a leveldb database at path.
func Open(path string) (*KV, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &KV{db: db}, nil
}

func (k *KV) Close() error { return k.db.Close() }

func (k *KV) Get(key []byte) ([]byte, bool, error) {
	v, err := k.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (k *KV) Put(key, value []byte) error {
	return k.db.Put(key, value, nil)
}

func (k *KV) Delete(key []byte) error {
	return k.db.Delete(key, nil)
}

// Entry is one key/value pair yielded by PrefixScan.
type Entry struct {
	Key   []byte
	Value []byte
}

// PrefixScan returns every entry whose key starts with prefix, in key order.
func (k *KV) PrefixScan(prefix []byte) ([]Entry, error) {
	iter := k.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var out []Entry
	for iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		val := append([]byte(nil), iter.Value()...)
		out = append(out, Entry{Key: key, Value: val})
	}
	return out, iter.Error()
}
