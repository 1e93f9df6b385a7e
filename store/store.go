// Package store defines the abstract storage contract the ledger consumes,
// per spec.md §6: per-table CRUD, forward/backward cursors with lower-bound
// seek, and a write queue with named writer slots. The on-disk engine
// itself is an external collaborator; concrete backends live in
// store/boltstore and store/leveldbkv.
package store

import (
	"context"
	"errors"
)

// Table names one of the ledger's persisted relations.
type Table string

const (
	TableAccount            Table = "account"
	TableBlock              Table = "block"
	TableConfirmationHeight Table = "confirmation_height"
	TableFinalVote          Table = "final_vote"
	TableOnlineWeight       Table = "online_weight"
	TablePeer               Table = "peer"
	TablePending            Table = "pending"
	TablePruned             Table = "pruned"
	TableRepWeight          Table = "rep_weight"
	TableVersion            Table = "version"
)

// AllTables lists every table a Store backend must provision.
var AllTables = []Table{
	TableAccount, TableBlock, TableConfirmationHeight, TableFinalVote,
	TableOnlineWeight, TablePeer, TablePending, TablePruned,
	TableRepWeight, TableVersion,
}

// WriterSlot names an entry in the write queue. At most one writer per slot
// is active at a time; acquiring two slots concurrently from the same
// goroutine is undefined per spec.md §5.
type WriterSlot string

const (
	SlotGeneric            WriterSlot = "generic"
	SlotBlockProcessor      WriterSlot = "block_processor"
	SlotConfirmationHeight  WriterSlot = "confirmation_height"
	SlotPruning             WriterSlot = "pruning"
	SlotBoundedBacklog      WriterSlot = "bounded_backlog"
	SlotOnlineWeight        WriterSlot = "online_weight"
	SlotTesting             WriterSlot = "testing"
)

// ErrNotFound is returned by Get when the key isn't present in the table.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned by any operation on a transaction that has already
// committed or aborted.
var ErrClosed = errors.New("store: transaction closed")

// Iterator is a forward cursor over one table, starting at a lower-bound
// key. Identity of a previously-returned Iterator is invalidated by a
// RefreshIfNeeded that actually reopened the transaction.
type Iterator interface {
	// Next advances the cursor and reports whether a row is available.
	Next() bool
	Key() []byte
	Value() []byte
	Close() error
}

// ReadTxn is a read-only view; readers are unbounded per spec.md §5.
type ReadTxn interface {
	Get(table Table, key []byte) ([]byte, error)
	Iterate(table Table, lowerBound []byte) (Iterator, error)
	IterateReverse(table Table, upperBound []byte) (Iterator, error)
	End()
}

// WriteTxn extends ReadTxn with mutation and the refresh contract spec.md
// §6 requires: RefreshIfNeeded commits and reopens once the transaction has
// accumulated more than a configured number of operations, so long-running
// writers (bounded backlog rollback, confirming set cementation) don't hold
// one transaction open indefinitely.
type WriteTxn interface {
	ReadTxn
	Put(table Table, key, value []byte) error
	Delete(table Table, key []byte) error
	RefreshIfNeeded() error
	Commit() error
	Abort() error
}

// Store is the abstract backend the ledger is built against.
type Store interface {
	TxBeginRead() (ReadTxn, error)
	TxBeginWrite(ctx context.Context, slot WriterSlot) (WriteTxn, error)
	Close() error
}
