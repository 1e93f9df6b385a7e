package scheduler

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/yxse/nan-node/block"
)

type queuedBlock struct {
	Time uint64
	Hash block.Hash
	Blk  *block.Block
}

func lessQueued(a, b queuedBlock) bool {
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	return a.Hash.Cmp(b.Hash) < 0
}

// Election is a bucket's record of an in-progress election, bound to the
// root of the block that triggered it. Priority equals the activating
// block's timestamp: numerically higher priority values mean lower actual
// priority, since older (smaller-timestamp) blocks are preferred.
type Election struct {
	ID       uuid.UUID
	Root     block.Hash
	Priority uint64
}

// Bucket holds one stake bucket's ordered queue of eligible unconfirmed
// blocks and its set of active elections, per spec.md §4.4.
type Bucket struct {
	mu                sync.Mutex
	maxBlocks         int
	maxElections      int
	reservedElections int
	queue             []queuedBlock
	elections         map[uuid.UUID]Election
}

func newBucket(maxBlocks, maxElections, reservedElections int) *Bucket {
	return &Bucket{
		maxBlocks:         maxBlocks,
		maxElections:      maxElections,
		reservedElections: reservedElections,
		elections:         make(map[uuid.UUID]Election),
	}
}

// Push inserts (time, blk) in ascending (time, hash) order. If this grows
// the queue past maxBlocks, the entry with the highest (time, hash) is
// dropped. Reports false iff the pushed entry was the one dropped.
func (b *Bucket) Push(t uint64, hash block.Hash, blk *block.Block) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := queuedBlock{Time: t, Hash: hash, Blk: blk}
	idx := sort.Search(len(b.queue), func(i int) bool { return !lessQueued(b.queue[i], entry) })
	b.queue = append(b.queue, queuedBlock{})
	copy(b.queue[idx+1:], b.queue[idx:])
	b.queue[idx] = entry

	if len(b.queue) > b.maxBlocks {
		dropped := b.queue[len(b.queue)-1]
		b.queue = b.queue[:len(b.queue)-1]
		return dropped.Hash.Cmp(hash) != 0 || dropped.Time != t
	}
	return true
}

// Size returns the number of blocks currently queued.
func (b *Bucket) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ElectionCount returns the number of active elections this bucket owns.
func (b *Bucket) ElectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.elections)
}

// Available reports whether activate() would succeed: the queue is
// non-empty, the bucket is under its election cap, and either it's under
// its reserved-slot floor or the caller's vacancy query (the external
// election scheduler's own capacity signal) says there's room.
func (b *Bucket) Available(vacancy func() bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return false
	}
	if len(b.elections) >= b.maxElections {
		return false
	}
	if len(b.elections) < b.reservedElections {
		return true
	}
	return vacancy()
}

// Activate pops the lowest (time, hash) block, starts an election bound
// to its root, and records it. If this pushes the election count past
// maxElections, the election with the numerically highest priority
// (lowest actual priority) is cancelled.
func (b *Bucket) Activate() (Election, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return Election{}, false
	}
	entry := b.queue[0]
	b.queue = b.queue[1:]

	el := Election{ID: uuid.New(), Root: entry.Blk.Root(), Priority: entry.Time}
	b.elections[el.ID] = el

	if len(b.elections) > b.maxElections {
		var worstID uuid.UUID
		var worstPriority uint64
		first := true
		for id, e := range b.elections {
			if first || e.Priority > worstPriority {
				worstID, worstPriority, first = id, e.Priority, false
			}
		}
		delete(b.elections, worstID)
	}
	return el, true
}

// Update drops elections the caller reports as finished.
func (b *Bucket) Update(finished func(Election) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, e := range b.elections {
		if finished(e) {
			delete(b.elections, id)
		}
	}
}
