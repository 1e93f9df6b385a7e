package boundedbacklog

import (
	"context"
	"time"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/blockprocessor"
	"github.com/yxse/nan-node/bucketing"
	"github.com/yxse/nan-node/confirmingset"
	"github.com/yxse/nan-node/event"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/ratelimit"
	"github.com/yxse/nan-node/store"
)

// Interlocks names the external collaborators should_rollback must
// consult before a backlogged block is rolled back. spec.md §4.5 names
// the vote cache, vote router, scheduler, and local rebroadcast buffer as
// such collaborators; ConfirmingSet is the one already implemented in
// this module, so it's checked directly rather than through a callback.
type Interlocks struct {
	ConfirmingSet     *confirmingset.Set
	VoteCache         func(block.Hash) bool
	VoteRouter        func(block.Hash) bool
	Scheduled         func(block.Hash) bool
	RebroadcastBuffer func(block.Hash) bool
}

func (i Interlocks) blocks(hash block.Hash) bool {
	if i.ConfirmingSet != nil && i.ConfirmingSet.Contains(hash) {
		return true
	}
	if i.VoteCache != nil && i.VoteCache(hash) {
		return true
	}
	if i.VoteRouter != nil && i.VoteRouter(hash) {
		return true
	}
	if i.Scheduled != nil && i.Scheduled(hash) {
		return true
	}
	if i.RebroadcastBuffer != nil && i.RebroadcastBuffer(hash) {
		return true
	}
	return false
}

// Config bounds the rollback loop and scan loop, matching spec.md §6's
// bounded_backlog.{max_backlog,bucket_threshold,batch_size} options.
type Config struct {
	MaxBacklog             int
	BucketThreshold        int
	BatchSize              int
	MaxQueuedNotifications int
}

// RolledBack is posted after the rollback loop reverses one round of
// over-budget blocks, outside the write transaction that performed the
// reversal.
type RolledBack struct {
	Blocks []block.Hash
}

// Backlog drives the three responsibilities spec.md §4.5 assigns the
// bounded backlog: indexing every unconfirmed block by bucket and
// priority, retiring index entries once they cement or roll back, and
// running the two background loops that keep backlog_count under
// max_backlog.
type Backlog struct {
	store  store.Store
	ledger *ledger.Ledger
	index  *Index
	cfg    Config
	locks  Interlocks

	scanLimiter *ratelimit.Bucket
	notifyQueue chan RolledBack

	onRolledBack event.Set[RolledBack]
}

// New constructs a Backlog. The scan loop's token bucket refills at
// cfg.BatchSize tokens/second, matching spec.md §4.5's "rate limited to
// batch_size per second" scan thread.
func New(st store.Store, l *ledger.Ledger, cfg Config, locks Interlocks) *Backlog {
	if cfg.MaxQueuedNotifications < 1 {
		cfg.MaxQueuedNotifications = 1
	}
	return &Backlog{
		store:       st,
		ledger:      l,
		index:       NewIndex(),
		cfg:         cfg,
		locks:       locks,
		scanLimiter: ratelimit.New(cfg.BatchSize, float64(cfg.BatchSize)),
		notifyQueue: make(chan RolledBack, cfg.MaxQueuedNotifications),
	}
}

// OnRolledBack returns the event set fired once per round of the rollback
// loop, after the reversed hashes have left the index.
func (bb *Backlog) OnRolledBack() *event.Set[RolledBack] { return &bb.onRolledBack }

// Index exposes the backlog index for inspection (metrics, tests).
func (bb *Backlog) Index() *Index { return bb.index }

// Subscribe wires the three event responsibilities spec.md §4.5 names:
// insert on every processed progress block, and remove on every cemented
// or rolled-back hash.
func (bb *Backlog) Subscribe(proc *blockprocessor.Processor, confirming *confirmingset.Set) {
	proc.OnBatchProcessed().Add(func(entries []blockprocessor.Entry) {
		for _, e := range entries {
			if e.Status != ledger.Progress {
				continue
			}
			bb.insert(e.Block)
		}
	})
	proc.OnRolledBack().Add(func(rb blockprocessor.RolledBack) {
		for _, blk := range rb.Blocks {
			bb.index.Remove(blk.Hash())
		}
	})
	confirming.OnBatchCemented().Add(func(contexts []confirmingset.Context) {
		for _, c := range contexts {
			bb.index.Remove(c.Hash)
		}
	})
}

func (bb *Backlog) insert(blk *block.Block) {
	tx, err := bb.store.TxBeginRead()
	if err != nil {
		return
	}
	defer tx.End()

	balance, ts, err := bb.ledger.BlockPriority(tx, blk)
	if err != nil {
		return
	}
	_, sb, ok, err := bb.ledger.BlockAt(tx, blk.Hash())
	if err != nil || !ok {
		return
	}
	bucket := bucketing.Default.BucketIndex(balance)
	bb.index.Insert(Entry{Hash: blk.Hash(), Account: sb.Account, Bucket: bucket, Priority: ts})
}

// Activate walks acct's chain backwards from its head, inserting every
// block not yet in the index, stopping at the confirmation frontier, an
// already-indexed hash, or the account's open block. backlogscan calls
// this to seed the index for accounts it discovers have fallen behind.
func (bb *Backlog) Activate(tx store.ReadTxn, acct account.Address) error {
	info, ok, err := bb.ledger.AccountInfoOf(tx, acct)
	if err != nil || !ok {
		return err
	}
	confInfo, hasConf, err := bb.ledger.ConfirmationHeightOf(tx, acct)
	if err != nil {
		return err
	}

	cur := info.Head
	for !cur.IsZero() {
		if bb.index.Contains(cur) {
			break
		}
		if hasConf && cur.Cmp(confInfo.Frontier) == 0 {
			break
		}
		blk, sb, ok, err := bb.ledger.BlockAt(tx, cur)
		if err != nil || !ok {
			return err
		}
		balance, ts, err := bb.ledger.BlockPriority(tx, blk)
		if err != nil {
			return err
		}
		bucket := bucketing.Default.BucketIndex(balance)
		bb.index.Insert(Entry{Hash: cur, Account: sb.Account, Bucket: bucket, Priority: ts})

		if blk.Previous.IsZero() {
			break
		}
		cur = blk.Previous
	}
	return nil
}

func (bb *Backlog) shouldRollback(tx store.ReadTxn, hash block.Hash) bool {
	if bb.locks.blocks(hash) {
		return false
	}
	exists, err := bb.ledger.UnconfirmedExists(tx, hash)
	if err != nil || !exists {
		return false
	}
	return true
}

// gatherTargets collects up to targetCount hashes to roll back, taking the
// newest blocks of the heaviest over-budget buckets first, per spec.md
// §4.5 step 2.
func (bb *Backlog) gatherTargets(targetCount int) []block.Hash {
	tx, err := bb.store.TxBeginRead()
	if err != nil {
		return nil
	}
	defer tx.End()

	var out []block.Hash
	for b := bucketing.Count - 1; b >= 0 && len(out) < targetCount; b-- {
		idx := bucketing.Index(b)
		if bb.index.SizeByBucket(idx) <= bb.cfg.BucketThreshold {
			continue
		}
		for _, h := range bb.index.TopByBucket(idx, bb.cfg.BatchSize) {
			if len(out) >= targetCount {
				break
			}
			if bb.shouldRollback(tx, h) {
				out = append(out, h)
			}
		}
	}
	return out
}

func (bb *Backlog) rollbackTargets(ctx context.Context, targets []block.Hash) {
	tx, err := bb.store.TxBeginWrite(ctx, store.SlotBoundedBacklog)
	if err != nil {
		return
	}

	var reversed []block.Hash
	for _, h := range targets {
		// Rollback keeps the hash it is given, so each target is rolled
		// back from its predecessor; an open block has none and stays.
		blk, _, ok, err := bb.ledger.BlockAt(tx, h)
		if err != nil || !ok || blk.Previous.IsZero() {
			continue
		}
		blocks, err := bb.ledger.Rollback(tx, blk.Previous)
		if err != nil {
			continue
		}
		for _, blk := range blocks {
			reversed = append(reversed, blk.Hash())
		}
	}

	if err := tx.Commit(); err != nil {
		return
	}
	for _, h := range reversed {
		bb.index.Remove(h)
	}
	if len(reversed) == 0 {
		return
	}
	bb.enqueueNotification(ctx, RolledBack{Blocks: reversed})
}

// enqueueNotification applies the back-pressure spec.md §4.5 step 5
// describes: if the notification worker already holds more than
// max_queued_notifications items, sleep before retrying rather than
// growing the queue without bound.
func (bb *Backlog) enqueueNotification(ctx context.Context, rb RolledBack) {
	for {
		select {
		case bb.notifyQueue <- rb:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// RunNotifier drains queued rollback notifications and fires OnRolledBack
// for each, decoupled from the rollback loop's own write transactions.
func (bb *Backlog) RunNotifier(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rb := <-bb.notifyQueue:
			bb.onRolledBack.Notify(rb)
		}
	}
}

// RunRollbackLoop holds backlog_count under max_backlog, per spec.md
// §4.5's five-step loop: while both the ledger's aggregate backlog and
// this node's index exceed the ceiling, gather targets from the heaviest
// over-budget buckets and roll each back in one write transaction.
func (bb *Backlog) RunRollbackLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bb.runRollbackRound(ctx)
		}
	}
}

func (bb *Backlog) runRollbackRound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		backlog := bb.ledger.BacklogCount()
		if backlog <= int64(bb.cfg.MaxBacklog) || bb.index.Size() <= bb.cfg.MaxBacklog {
			return
		}
		target := int(backlog) - bb.cfg.MaxBacklog
		if target > bb.cfg.BatchSize {
			target = bb.cfg.BatchSize
		}
		targets := bb.gatherTargets(target)
		if len(targets) == 0 {
			// Every over-budget bucket is entirely filter-blocked; the
			// termination invariant spec.md §4.5 allows is satisfied even
			// though index.size() still exceeds max_backlog.
			return
		}
		bb.rollbackTargets(ctx, targets)
	}
}

// RunScanLoop walks the index in hash order, rate limited to batch_size
// hashes per second, dropping any entry whose block has since cemented
// out from under it without a batch_cemented notification reaching this
// node (e.g. after a restart that rebuilt the index from the store).
func (bb *Backlog) RunScanLoop(ctx context.Context) error {
	for {
		hashes := bb.index.AllHashes()
		for _, h := range hashes {
			if err := bb.scanLimiter.Wait(ctx, 1); err != nil {
				return nil
			}
			bb.scanOne(h)
		}
		if len(hashes) == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (bb *Backlog) scanOne(hash block.Hash) {
	tx, err := bb.store.TxBeginRead()
	if err != nil {
		return
	}
	defer tx.End()
	exists, err := bb.ledger.UnconfirmedExists(tx, hash)
	if err == nil && !exists {
		bb.index.Remove(hash)
	}
}
