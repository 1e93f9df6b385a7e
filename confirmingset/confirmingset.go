// Package confirmingset accepts hashes nominated as cemented by the
// external voting layer and drives ledger.Cement for each, per spec.md
// §4.3.
package confirmingset

import (
	"context"
	"sync"

	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/event"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/store"
)

// Context names one newly cemented hash, the unit batch_cemented fires a
// slice of.
type Context struct {
	Hash block.Hash
}

// Set tracks hashes that are queued for, or currently being, cemented.
// Contains is the rollback interlock spec.md §4.5's should_rollback check
// consults: a hash mid-cementation must never be rolled back.
type Set struct {
	store  store.Store
	ledger *ledger.Ledger

	mu      sync.Mutex
	pending []block.Hash
	inFlight map[[32]byte]struct{}
	notify  chan struct{}

	onBatchCemented event.Set[[]Context]
}

// New constructs a Set bound to the given store and ledger.
func New(st store.Store, l *ledger.Ledger) *Set {
	return &Set{
		store:    st,
		ledger:   l,
		inFlight: make(map[[32]byte]struct{}),
		notify:   make(chan struct{}, 1),
	}
}

// OnBatchCemented returns the event set fired after each processed batch.
func (s *Set) OnBatchCemented() *event.Set[[]Context] { return &s.onBatchCemented }

// Add queues hash for cementation if it isn't already queued or in
// flight.
func (s *Set) Add(hash block.Hash) {
	key := hash.Bytes()
	s.mu.Lock()
	if _, ok := s.inFlight[key]; ok {
		s.mu.Unlock()
		return
	}
	s.inFlight[key] = struct{}{}
	s.pending = append(s.pending, hash)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Contains reports whether hash is queued or being cemented.
func (s *Set) Contains(hash block.Hash) bool {
	key := hash.Bytes()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inFlight[key]
	return ok
}

func (s *Set) take() []block.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.pending
	s.pending = nil
	return batch
}

func (s *Set) release(hashes []block.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range hashes {
		delete(s.inFlight, h.Bytes())
	}
}

// Run drains the queue until ctx is cancelled, cementing one nominated
// batch per wakeup in a single write transaction, then firing
// batch_cemented.
func (s *Set) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.notify:
		}
		batch := s.take()
		if len(batch) == 0 {
			continue
		}
		if err := s.cementBatch(ctx, batch); err != nil {
			return err
		}
	}
}

func (s *Set) cementBatch(ctx context.Context, batch []block.Hash) error {
	tx, err := s.store.TxBeginWrite(ctx, store.SlotConfirmationHeight)
	if err != nil {
		return err
	}

	var contexts []Context
	for _, hash := range batch {
		chain, err := s.ledger.Cement(tx, hash)
		if err != nil {
			_ = tx.Abort()
			return err
		}
		for _, h := range chain {
			contexts = append(contexts, Context{Hash: h})
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.release(batch)

	if len(contexts) > 0 {
		s.onBatchCemented.Notify(contexts)
	}
	return nil
}
