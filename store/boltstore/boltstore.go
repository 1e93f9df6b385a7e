// Package boltstore implements the store.Store contract on top of
// go.etcd.io/bbolt, the teacher's on-disk storage library (storage/db.go),
// generalized here from the teacher's single flat key-value table to the
// ledger's ten-table schema.
package boltstore

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/yxse/nan-node/store"
)

// refreshThreshold is the number of operations a write transaction may
// accumulate before RefreshIfNeeded commits and reopens it, per spec.md
// §6. bbolt holds its entire write transaction in memory until commit, so
// long rollback/cementation walks need this to bound memory growth.
const refreshThreshold = 8192

// Store is a bbolt-backed store.Store.
type Store struct {
	db    *bolt.DB
	queue *store.WriteQueue
}

// Open opens (creating if absent) a bbolt database at path and provisions
// every table in store.AllTables as a top-level bucket.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, t := range store.AllTables {
			if _, err := tx.CreateBucketIfNotExists([]byte(t)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, queue: store.NewWriteQueue()}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// TxBeginRead opens a read-only bbolt transaction.
func (s *Store) TxBeginRead() (store.ReadTxn, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, err
	}
	return &readTxn{tx: tx}, nil
}

// TxBeginWrite queues for the named writer slot, then opens a writable
// bbolt transaction once granted.
func (s *Store) TxBeginWrite(ctx context.Context, slot store.WriterSlot) (store.WriteTxn, error) {
	guard, err := s.queue.Wait(ctx, slot)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.Begin(true)
	if err != nil {
		guard.Release()
		return nil, err
	}
	return &writeTxn{db: s.db, tx: tx, guard: guard}, nil
}

type readTxn struct {
	tx     *bolt.Tx
	closed bool
}

func (r *readTxn) Get(table store.Table, key []byte) ([]byte, error) {
	b := r.tx.Bucket([]byte(table))
	if b == nil {
		return nil, store.ErrNotFound
	}
	v := b.Get(key)
	if v == nil {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (r *readTxn) Iterate(table store.Table, lowerBound []byte) (store.Iterator, error) {
	b := r.tx.Bucket([]byte(table))
	if b == nil {
		return nil, store.ErrNotFound
	}
	return newForwardIterator(b.Cursor(), lowerBound), nil
}

func (r *readTxn) IterateReverse(table store.Table, upperBound []byte) (store.Iterator, error) {
	b := r.tx.Bucket([]byte(table))
	if b == nil {
		return nil, store.ErrNotFound
	}
	return newReverseIterator(b.Cursor(), upperBound), nil
}

func (r *readTxn) End() {
	if r.closed {
		return
	}
	r.closed = true
	r.tx.Rollback()
}

type writeTxn struct {
	db    *bolt.DB
	tx    *bolt.Tx
	guard *store.WriteGuard
	ops   int
	ended bool
}

func (w *writeTxn) Get(table store.Table, key []byte) ([]byte, error) {
	if w.ended {
		return nil, store.ErrClosed
	}
	b := w.tx.Bucket([]byte(table))
	if b == nil {
		return nil, store.ErrNotFound
	}
	v := b.Get(key)
	if v == nil {
		return nil, store.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (w *writeTxn) Iterate(table store.Table, lowerBound []byte) (store.Iterator, error) {
	if w.ended {
		return nil, store.ErrClosed
	}
	b := w.tx.Bucket([]byte(table))
	if b == nil {
		return nil, store.ErrNotFound
	}
	return newForwardIterator(b.Cursor(), lowerBound), nil
}

func (w *writeTxn) IterateReverse(table store.Table, upperBound []byte) (store.Iterator, error) {
	if w.ended {
		return nil, store.ErrClosed
	}
	b := w.tx.Bucket([]byte(table))
	if b == nil {
		return nil, store.ErrNotFound
	}
	return newReverseIterator(b.Cursor(), upperBound), nil
}

func (w *writeTxn) Put(table store.Table, key, value []byte) error {
	if w.ended {
		return store.ErrClosed
	}
	b := w.tx.Bucket([]byte(table))
	if b == nil {
		return store.ErrNotFound
	}
	w.ops++
	return b.Put(key, value)
}

func (w *writeTxn) Delete(table store.Table, key []byte) error {
	if w.ended {
		return store.ErrClosed
	}
	b := w.tx.Bucket([]byte(table))
	if b == nil {
		return store.ErrNotFound
	}
	w.ops++
	return b.Delete(key)
}

// RefreshIfNeeded commits and reopens the underlying bbolt transaction once
// refreshThreshold or more operations have accumulated. Any Iterator
// obtained before the refresh is invalidated, matching spec.md §6.
func (w *writeTxn) RefreshIfNeeded() error {
	if w.ended {
		return store.ErrClosed
	}
	if w.ops < refreshThreshold {
		return nil
	}
	if err := w.tx.Commit(); err != nil {
		return err
	}
	tx, err := w.db.Begin(true)
	if err != nil {
		w.ended = true
		return err
	}
	w.tx = tx
	w.ops = 0
	return nil
}

func (w *writeTxn) Commit() error {
	if w.ended {
		return store.ErrClosed
	}
	w.ended = true
	defer w.guard.Release()
	return w.tx.Commit()
}

func (w *writeTxn) Abort() error {
	if w.ended {
		return nil
	}
	w.ended = true
	defer w.guard.Release()
	return w.tx.Rollback()
}

func (w *writeTxn) End() { w.Abort() }
