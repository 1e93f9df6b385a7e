// Package bootstrap implements the ascending-bootstrap support structures
// spec.md §4.9-§4.11 names: the account-sets priority/blocking containers
// that pick which account to pull next, the per-channel peer-scoring
// record that spreads bootstrap load across peers, and the sliding-window
// throttle that backs off the whole walk when peers stop returning new
// blocks.
package bootstrap

import (
	"math"
	"sync"
	"time"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/stats"
)

// Config bounds an AccountSets, matching spec.md §4.9's named parameters.
type Config struct {
	PriorityMax     float64
	PriorityInitial float64
	PrioritiesMax   int
	MaxFails        int
	PriorityCutoff  float64
	BlockingMax     int
	Cooldown        time.Duration
}

const priorityIncrease = 2.0
const priorityDivide = 2.0

type priorityRecord struct {
	Account   account.Address
	Priority  float64
	Fails     int
	Timestamp time.Time
}

type blockingRecord struct {
	Account           account.Address
	DependencyHash    block.Hash
	DependencyAccount account.Address
}

// AccountSets bundles the Priorities and Blocking containers spec.md §4.9
// describes as two indexed containers, the way nano's own account_sets
// class keeps them together: every operation that touches one needs to
// consult the other (priority_up consults blocked, block moves an entry
// from priorities to blocking), so splitting them into independently
// exported types would just push that coupling onto every caller.
type AccountSets struct {
	mu  sync.Mutex
	cfg Config
	reg *stats.Registry

	priorities map[account.Address]*priorityRecord

	blocking      map[account.Address]*blockingRecord
	blockingOrder []account.Address // insertion order, for oldest-entry eviction

	prioritizeFailed uint64
}

// New constructs an AccountSets. A nil reg uses stats.Default.
func New(cfg Config, reg *stats.Registry) *AccountSets {
	if reg == nil {
		reg = stats.Default
	}
	return &AccountSets{
		cfg:        cfg,
		reg:        reg,
		priorities: make(map[account.Address]*priorityRecord),
		blocking:   make(map[account.Address]*blockingRecord),
	}
}

// PriorityUp raises acct's priority (or inserts it at priority_initial),
// unless acct is currently blocked, per spec.md §4.9.
func (a *AccountSets) PriorityUp(acct account.Address) {
	if acct.IsZero() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.blockedLocked(acct) {
		a.prioritizeFailed++
		a.reg.Inc("bootstrap_account_sets", "prioritize_failed")
		return
	}
	if rec, ok := a.priorities[acct]; ok {
		rec.Priority = math.Min(rec.Priority+priorityIncrease, a.cfg.PriorityMax)
		rec.Fails = 0
		return
	}
	a.priorities[acct] = &priorityRecord{Account: acct, Priority: a.cfg.PriorityInitial}
	a.reg.Inc("bootstrap_account_sets", "priority_insert")
	a.trimPrioritiesLocked()
}

// PriorityDown halves acct's priority, erasing the entry once it has
// failed out (fails past max_fails, fails past its own priority, or
// priority down to the cutoff), per spec.md §4.9.
func (a *AccountSets) PriorityDown(acct account.Address) {
	if acct.IsZero() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.priorities[acct]
	if !ok {
		a.reg.Inc("bootstrap_account_sets", "deprioritize_failed")
		return
	}
	priority := rec.Priority / priorityDivide
	if rec.Fails >= a.cfg.MaxFails || float64(rec.Fails) >= rec.Priority || priority <= a.cfg.PriorityCutoff {
		delete(a.priorities, acct)
		a.reg.Inc("bootstrap_account_sets", "erase_by_threshold")
		return
	}
	rec.Fails++
	rec.Priority = priority
}

// PrioritySet inserts acct at priority if it is neither blocked nor
// already tracked; otherwise it is a no-op.
func (a *AccountSets) PrioritySet(acct account.Address, priority float64) {
	if acct.IsZero() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prioritySetLocked(acct, priority)
}

func (a *AccountSets) prioritySetLocked(acct account.Address, priority float64) {
	if a.blockedLocked(acct) {
		a.reg.Inc("bootstrap_account_sets", "prioritize_failed")
		return
	}
	if _, ok := a.priorities[acct]; ok {
		return
	}
	a.priorities[acct] = &priorityRecord{Account: acct, Priority: priority}
	a.reg.Inc("bootstrap_account_sets", "priority_set")
	a.trimPrioritiesLocked()
}

// TimestampSet stamps acct's priority entry with now, marking it as just
// handed out so next_priority's cooldown skips it for a while.
func (a *AccountSets) TimestampSet(acct account.Address, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec, ok := a.priorities[acct]; ok {
		rec.Timestamp = now
	}
}

// TimestampReset clears acct's cooldown stamp, making it eligible for
// next_priority immediately.
func (a *AccountSets) TimestampReset(acct account.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if rec, ok := a.priorities[acct]; ok {
		rec.Timestamp = time.Time{}
	}
}

// NextPriority returns the highest-priority account that is past its
// cooldown and accepted by filter, or the zero Address if none qualify.
func (a *AccountSets) NextPriority(now time.Time, filter func(account.Address) bool) account.Address {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := now.Add(-a.cfg.Cooldown)
	var best *priorityRecord
	for _, rec := range a.priorities {
		if rec.Timestamp.After(cutoff) {
			continue
		}
		if !filter(rec.Account) {
			continue
		}
		if best == nil || rec.Priority > best.Priority {
			best = rec
		}
	}
	if best == nil {
		return account.Address{}
	}
	return best.Account
}

// Block moves acct out of priorities and into blocking, bound to
// dependency, per spec.md §4.9. It is a no-op if acct was not already
// prioritized, matching the expectation that only accounts the scheduler
// already knows about can become blocked.
func (a *AccountSets) Block(acct account.Address, dependency block.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.priorities[acct]; !ok {
		a.reg.Inc("bootstrap_account_sets", "block_failed")
		return
	}
	delete(a.priorities, acct)
	a.blocking[acct] = &blockingRecord{Account: acct, DependencyHash: dependency}
	a.blockingOrder = append(a.blockingOrder, acct)
	a.reg.Inc("bootstrap_account_sets", "block")
	a.trimBlockingLocked()
}

// Unblock re-admits acct to priorities at priority_initial, provided it
// is currently blocked and (when hash is non-nil) the stored dependency
// matches hash.
func (a *AccountSets) Unblock(acct account.Address, hash *block.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.blocking[acct]
	if !ok || (hash != nil && rec.DependencyHash.Cmp(*hash) != 0) {
		a.reg.Inc("bootstrap_account_sets", "unblock_failed")
		return
	}
	a.removeBlockingLocked(acct)
	a.priorities[acct] = &priorityRecord{Account: acct, Priority: a.cfg.PriorityInitial}
	a.reg.Inc("bootstrap_account_sets", "unblock")
	a.trimPrioritiesLocked()
}

// DependencyUpdate fills in DependencyAccount for every blocking entry
// whose DependencyHash matches hash and whose dependency account is
// still unknown.
func (a *AccountSets) DependencyUpdate(hash block.Hash, dependencyAccount account.Address) {
	a.mu.Lock()
	defer a.mu.Unlock()

	matched := false
	for _, rec := range a.blocking {
		if rec.DependencyHash.Cmp(hash) != 0 {
			continue
		}
		matched = true
		if rec.DependencyAccount.IsZero() {
			rec.DependencyAccount = dependencyAccount
		}
	}
	if matched {
		a.reg.Inc("bootstrap_account_sets", "dependency_update")
	} else {
		a.reg.Inc("bootstrap_account_sets", "dependency_update_failed")
	}
}

// NextBlocking returns the dependency hash of the first blocking entry
// with an unknown dependency account that passes filter, or the zero
// hash if none qualify.
func (a *AccountSets) NextBlocking(filter func(block.Hash) bool) block.Hash {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, acct := range a.blockingOrder {
		rec, ok := a.blocking[acct]
		if !ok || !rec.DependencyAccount.IsZero() {
			continue
		}
		if filter(rec.DependencyHash) {
			return rec.DependencyHash
		}
	}
	return block.Hash{}
}

// SyncDependencies promotes every blocking entry's known dependency
// account to a prioritized account, unless it is itself blocked or
// already prioritized. Stops once priorities is full.
func (a *AccountSets) SyncDependencies() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reg.Inc("bootstrap_account_sets", "sync_dependencies")
	for _, acct := range a.blockingOrder {
		if a.cfg.PrioritiesMax > 0 && len(a.priorities) >= a.cfg.PrioritiesMax {
			break
		}
		rec, ok := a.blocking[acct]
		if !ok || rec.DependencyAccount.IsZero() {
			continue
		}
		dep := rec.DependencyAccount
		if a.blockedLocked(dep) {
			continue
		}
		if _, prioritized := a.priorities[dep]; prioritized {
			continue
		}
		a.reg.Inc("bootstrap_account_sets", "dependency_synced")
		a.prioritySetLocked(dep, a.cfg.PriorityInitial)
	}
	a.trimPrioritiesLocked()
	a.trimBlockingLocked()
}

// Blocked reports whether acct currently has a blocking entry.
func (a *AccountSets) Blocked(acct account.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blockedLocked(acct)
}

func (a *AccountSets) blockedLocked(acct account.Address) bool {
	_, ok := a.blocking[acct]
	return ok
}

// Prioritized reports whether acct currently has a priority entry.
func (a *AccountSets) Prioritized(acct account.Address) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.priorities[acct]
	return ok
}

// Priority returns acct's current priority, or 0 if it is blocked or
// untracked.
func (a *AccountSets) Priority(acct account.Address) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.blockedLocked(acct) {
		return 0
	}
	if rec, ok := a.priorities[acct]; ok {
		return rec.Priority
	}
	return 0
}

// PrioritySize and BlockingSize report the current size of each
// container, for metrics and tests.
func (a *AccountSets) PrioritySize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.priorities)
}

func (a *AccountSets) BlockingSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blocking)
}

func (a *AccountSets) trimPrioritiesLocked() {
	for a.cfg.PrioritiesMax > 0 && len(a.priorities) > a.cfg.PrioritiesMax {
		var worst account.Address
		var worstPriority float64
		first := true
		for acct, rec := range a.priorities {
			if first || rec.Priority < worstPriority {
				worst, worstPriority, first = acct, rec.Priority, false
			}
		}
		delete(a.priorities, worst)
		a.reg.Inc("bootstrap_account_sets", "priority_overflow")
	}
}

func (a *AccountSets) trimBlockingLocked() {
	for a.cfg.BlockingMax > 0 && len(a.blocking) > a.cfg.BlockingMax {
		oldest := a.blockingOrder[0]
		a.removeBlockingLocked(oldest)
		a.reg.Inc("bootstrap_account_sets", "blocking_overflow")
	}
}

func (a *AccountSets) removeBlockingLocked(acct account.Address) {
	delete(a.blocking, acct)
	for i, candidate := range a.blockingOrder {
		if candidate.Cmp(acct) == 0 {
			a.blockingOrder = append(a.blockingOrder[:i], a.blockingOrder[i+1:]...)
			break
		}
	}
}
