// Package scheduler implements the priority scheduler: one bucket per
// stake bucket, each holding an ordered queue of eligible unconfirmed
// blocks and a bounded set of active elections, per spec.md §4.4.
package scheduler

import (
	"context"
	"time"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/blockprocessor"
	"github.com/yxse/nan-node/bucketing"
	"github.com/yxse/nan-node/confirmingset"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/store"
)

// Scheduler owns one Bucket per bucketing.Index. Starting and cancelling
// elections in response to the vacancy and finished-election queries is
// delegated to the external election system — spec.md §9 names
// active_elections::vacancy as exactly such a collaborator — via the
// Vacancy and Finished callbacks.
type Scheduler struct {
	store   store.Store
	ledger  *ledger.Ledger
	buckets []*Bucket

	// Vacancy reports whether the external election system has room for
	// one more election bound to the given bucket.
	Vacancy func(bucketing.Index) bool
	// Finished reports whether an election the scheduler started has
	// concluded and can be dropped from its bucket's active set.
	Finished func(Election) bool
}

// Config bounds every bucket identically, matching spec.md §6's
// priority_bucket.{max_blocks,reserved_elections,max_elections} options.
type Config struct {
	MaxBlocks         int
	ReservedElections int
	MaxElections      int
}

// New constructs a Scheduler with one bucket per bucketing index.
func New(st store.Store, l *ledger.Ledger, cfg Config) *Scheduler {
	s := &Scheduler{store: st, ledger: l, buckets: make([]*Bucket, bucketing.Count)}
	for i := range s.buckets {
		s.buckets[i] = newBucket(cfg.MaxBlocks, cfg.MaxElections, cfg.ReservedElections)
	}
	return s
}

// Bucket returns the bucket at idx.
func (s *Scheduler) Bucket(idx bucketing.Index) *Bucket { return s.buckets[idx] }

// Subscribe wires activation triggers (a) and (b) from spec.md §4.4: every
// progress block activates its own account plus, for sends, the
// destination account; every cemented block does the same, propagating
// confirmation downstream.
func (s *Scheduler) Subscribe(proc *blockprocessor.Processor, confirming *confirmingset.Set) {
	proc.OnBatchProcessed().Add(func(entries []blockprocessor.Entry) {
		for _, e := range entries {
			if e.Status != ledger.Progress {
				continue
			}
			s.activateSuccessors(e.Block.Hash())
		}
	})
	confirming.OnBatchCemented().Add(func(contexts []confirmingset.Context) {
		for _, c := range contexts {
			s.activateSuccessors(c.Hash)
		}
	})
}

func (s *Scheduler) activateSuccessors(hash block.Hash) {
	ctx := context.Background()
	tx, err := s.store.TxBeginRead()
	if err != nil {
		return
	}
	defer tx.End()

	blk, sb, ok, err := s.ledger.BlockAt(tx, hash)
	if err != nil || !ok {
		return
	}
	_ = s.activate(ctx, tx, sb.Account)

	if dest, ok := destinationOf(blk, sb); ok {
		_ = s.activate(ctx, tx, dest)
	}
}

// destinationOf returns the account a send block credited, if blk is one.
func destinationOf(blk *block.Block, sb *block.Sideband) (account.Address, bool) {
	switch blk.Type {
	case block.Send:
		return blk.Destination, true
	case block.State:
		if sb.Details.IsSend {
			return account.FromPublicKey(blk.Link), true
		}
	}
	return account.Address{}, false
}

// activate reads account_info and confirmation_height_info for acct; if
// the account has blocks past its confirmation frontier and the next
// one's dependents are confirmed, it is pushed into its bucket.
func (s *Scheduler) activate(_ context.Context, tx store.ReadTxn, acct account.Address) error {
	info, ok, err := s.ledger.AccountInfoOf(tx, acct)
	if err != nil || !ok {
		return err
	}
	confInfo, hasConf, err := s.ledger.ConfirmationHeightOf(tx, acct)
	if err != nil {
		return err
	}
	height := uint64(0)
	if hasConf {
		height = confInfo.Height
	}
	if height >= info.BlockCount {
		return nil
	}

	var nextHash block.Hash
	if !hasConf {
		nextHash = info.OpenBlock
	} else {
		_, frontierSb, ok, err := s.ledger.BlockAt(tx, confInfo.Frontier)
		if err != nil {
			return err
		}
		if !ok || frontierSb.Successor.IsZero() {
			return nil
		}
		nextHash = frontierSb.Successor
	}

	nextBlk, _, ok, err := s.ledger.BlockAt(tx, nextHash)
	if err != nil || !ok {
		return err
	}

	confirmed, err := s.ledger.DependentsConfirmed(tx, nextBlk)
	if err != nil || !confirmed {
		return err
	}

	balance, ts, err := s.ledger.BlockPriority(tx, nextBlk)
	if err != nil {
		return err
	}
	idx := bucketing.Default.BucketIndex(balance)
	s.buckets[idx].Push(ts, nextHash, nextBlk)
	return nil
}

func (s *Scheduler) vacancy(idx bucketing.Index) bool {
	if s.Vacancy == nil {
		return true
	}
	return s.Vacancy(idx)
}

func (s *Scheduler) finished(e Election) bool {
	if s.Finished == nil {
		return false
	}
	return s.Finished(e)
}

// RunMain blocks until ctx is cancelled, waking whenever any bucket
// reports Available and calling Activate on each that does, per spec.md
// §4.4's main-thread loop.
func (s *Scheduler) RunMain(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for idx, b := range s.buckets {
				bi := bucketing.Index(idx)
				if b.Available(func() bool { return s.vacancy(bi) }) {
					b.Activate()
				}
			}
		}
	}
}

// RunCleanup blocks until ctx is cancelled, calling Update on every
// bucket once per interval, per spec.md §4.4's cleanup thread.
func (s *Scheduler) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, b := range s.buckets {
				b.Update(s.finished)
			}
		}
	}
}
