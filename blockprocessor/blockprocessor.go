// Package blockprocessor implements the single producer/consumer queue that
// hands blocks to the ledger in batches, per spec.md §4.2.
package blockprocessor

import (
	"context"
	"errors"
	"sync"

	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/event"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/store"
)

// ErrQueueFull is returned by Submit when the processor's backlog has
// reached its configured limit, signalling producers to back off.
var ErrQueueFull = errors.New("blockprocessor: queue full")

// Entry pairs a processed block's outcome with the caller-supplied
// correlation data it was submitted with.
type Entry struct {
	Status  ledger.Status
	Block   *block.Block
	Context any
}

// RolledBack is posted whenever resolving a batch required reversing
// blocks already in the store, naming the qualified root (the block's
// Root()) the reversed chain belonged to.
type RolledBack struct {
	Blocks        []*block.Block
	QualifiedRoot block.Hash
}

type queued struct {
	blk     *block.Block
	context any
}

// Processor drains a bounded FIFO of submitted blocks into ledger.Process
// calls, batching up to BatchSize blocks per write transaction.
type Processor struct {
	store     store.Store
	ledger    *ledger.Ledger
	batchSize int

	mu     sync.Mutex
	queue  []queued
	limit  int
	notify chan struct{}

	onBatchProcessed event.Set[[]Entry]
	onRolledBack     event.Set[RolledBack]
}

// New constructs a Processor. queueLimit bounds Submit's backlog; batchSize
// bounds how many blocks share one ledger write transaction.
func New(st store.Store, l *ledger.Ledger, batchSize, queueLimit int) *Processor {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Processor{
		store:     st,
		ledger:    l,
		batchSize: batchSize,
		limit:     queueLimit,
		notify:    make(chan struct{}, 1),
	}
}

// OnBatchProcessed returns the event set observers register on to learn
// the outcome of every processed block, in submission order per batch.
func (p *Processor) OnBatchProcessed() *event.Set[[]Entry] { return &p.onBatchProcessed }

// OnRolledBack returns the event set fired whenever a batch required
// rolling back previously stored blocks to resolve a fork.
func (p *Processor) OnRolledBack() *event.Set[RolledBack] { return &p.onRolledBack }

// Submit enqueues a block for processing, returning ErrQueueFull if the
// backlog is at capacity so the caller can apply back-pressure upstream.
func (p *Processor) Submit(blk *block.Block, ctxData any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && len(p.queue) >= p.limit {
		return ErrQueueFull
	}
	p.queue = append(p.queue, queued{blk: blk, context: ctxData})
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len reports the current backlog depth.
func (p *Processor) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Processor) take(max int) []queued {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	if max > len(p.queue) {
		max = len(p.queue)
	}
	batch := p.queue[:max]
	p.queue = p.queue[max:]
	return batch
}

// Run drains the queue until ctx is cancelled, processing one batch per
// wakeup. Failure of any single block within a batch does not abort it:
// each block's status is still recorded and the rest of the batch proceeds.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.notify:
		}
		for {
			batch := p.take(p.batchSize)
			if len(batch) == 0 {
				break
			}
			if err := p.processBatch(ctx, batch); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context, batch []queued) error {
	tx, err := p.store.TxBeginWrite(ctx, store.SlotBlockProcessor)
	if err != nil {
		return err
	}

	entries := make([]Entry, 0, len(batch))
	var rolledBack []RolledBack
	for _, q := range batch {
		status, procErr := p.ledger.Process(tx, q.blk)
		if procErr != nil {
			_ = tx.Abort()
			return procErr
		}
		if status == ledger.Fork && q.blk.Type != block.Open {
			reversed, rbErr := p.ledger.Rollback(tx, q.blk.Root())
			if rbErr != nil {
				_ = tx.Abort()
				return rbErr
			}
			if len(reversed) > 0 {
				rolledBack = append(rolledBack, RolledBack{Blocks: reversed, QualifiedRoot: q.blk.Root()})
			}
			status, procErr = p.ledger.Process(tx, q.blk)
			if procErr != nil {
				_ = tx.Abort()
				return procErr
			}
		}
		entries = append(entries, Entry{Status: status, Block: q.blk, Context: q.context})
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	p.onBatchProcessed.Notify(entries)
	for _, rb := range rolledBack {
		p.onRolledBack.Notify(rb)
	}
	return nil
}
