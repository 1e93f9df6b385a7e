// Package boundedbacklog implements the index of all unconfirmed blocks
// by (bucket, priority) and the rollback/scan loops that hold the ledger's
// backlog below a configured ceiling, per spec.md §4.5.
package boundedbacklog

import (
	"sort"
	"sync"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/bucketing"
)

// Entry is one backlog index record.
type Entry struct {
	Hash     block.Hash
	Account  account.Address
	Bucket   bucketing.Index
	Priority uint64
}

func lessEntry(a, b Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Hash.Cmp(b.Hash) < 0
}

// Index supports the four queries spec.md §4.5 names: lookup by hash,
// equal-range by account, descending (bucket, priority) scan within one
// bucket, and a sequential scan across every hash.
type Index struct {
	mu        sync.Mutex
	byHash    map[[32]byte]Entry
	byAccount map[[32]byte][]block.Hash
	byBucket  [][]Entry // each kept sorted ascending by (priority, hash)
}

// NewIndex constructs an empty Index.
func NewIndex() *Index {
	return &Index{
		byHash:    make(map[[32]byte]Entry),
		byAccount: make(map[[32]byte][]block.Hash),
		byBucket:  make([][]Entry, bucketing.Count),
	}
}

// Insert adds e unless its hash is already present.
func (idx *Index) Insert(e Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := e.Hash.Bytes()
	if _, ok := idx.byHash[key]; ok {
		return
	}
	idx.byHash[key] = e

	accKey := e.Account.PublicKey().Bytes()
	idx.byAccount[accKey] = append(idx.byAccount[accKey], e.Hash)

	bucket := idx.byBucket[e.Bucket]
	pos := sort.Search(len(bucket), func(i int) bool { return !lessEntry(bucket[i], e) })
	bucket = append(bucket, Entry{})
	copy(bucket[pos+1:], bucket[pos:])
	bucket[pos] = e
	idx.byBucket[e.Bucket] = bucket
}

// Remove deletes hash's entry, if present.
func (idx *Index) Remove(hash block.Hash) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	key := hash.Bytes()
	e, ok := idx.byHash[key]
	if !ok {
		return
	}
	delete(idx.byHash, key)

	accKey := e.Account.PublicKey().Bytes()
	accEntries := idx.byAccount[accKey]
	for i, h := range accEntries {
		if h.Cmp(hash) == 0 {
			idx.byAccount[accKey] = append(accEntries[:i], accEntries[i+1:]...)
			break
		}
	}
	if len(idx.byAccount[accKey]) == 0 {
		delete(idx.byAccount, accKey)
	}

	bucket := idx.byBucket[e.Bucket]
	for i, be := range bucket {
		if be.Hash.Cmp(hash) == 0 {
			idx.byBucket[e.Bucket] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
}

// Contains reports whether hash is indexed.
func (idx *Index) Contains(hash block.Hash) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	_, ok := idx.byHash[hash.Bytes()]
	return ok
}

// Size returns the total number of indexed hashes.
func (idx *Index) Size() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byHash)
}

// SizeByBucket returns the count of entries in bucket b, which must equal
// the invariant spec.md §3 names.
func (idx *Index) SizeByBucket(b bucketing.Index) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.byBucket[b])
}

// ByAccount returns every indexed hash belonging to acct.
func (idx *Index) ByAccount(acct account.Address) []block.Hash {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	src := idx.byAccount[acct.PublicKey().Bytes()]
	out := make([]block.Hash, len(src))
	copy(out, src)
	return out
}

// TopByBucket returns up to n hashes from bucket b in descending
// (priority, hash) order — the newest entries first.
func (idx *Index) TopByBucket(b bucketing.Index, n int) []block.Hash {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	bucket := idx.byBucket[b]
	if n > len(bucket) {
		n = len(bucket)
	}
	out := make([]block.Hash, n)
	for i := 0; i < n; i++ {
		out[i] = bucket[len(bucket)-1-i].Hash
	}
	return out
}

// AllHashes returns every indexed hash, sorted for a stable walk order
// the scan loop can resume deterministically across runs.
func (idx *Index) AllHashes() []block.Hash {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]block.Hash, 0, len(idx.byHash))
	for _, e := range idx.byHash {
		out = append(out, e.Hash)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
