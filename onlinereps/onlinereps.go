// Package onlinereps tracks which representatives are currently voting,
// derives the network's online weight, and computes the confirmation
// quorum (delta) callers compare a block's tally against, per spec.md
// §4.12.
package onlinereps

import (
	"context"
	"encoding/binary"
	"math/big"
	"sync"
	"time"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/store"
)

// Config bounds the tracker, matching spec.md §4.12's named parameters.
type Config struct {
	VoteWeightMinimum numeric.Uint128
	WeightInterval    time.Duration
	WeightCutoff      int
	QuorumPercent     int
	MinimumWeight     numeric.Uint128
	SampleInterval    time.Duration
}

type observation struct {
	weight numeric.Uint128
	seenAt time.Time
}

// Tracker observes votes, trims stale observations, and samples the
// online weight into a persisted time series.
type Tracker struct {
	ledger *ledger.Ledger
	store  store.Store
	cfg    Config

	mu      sync.Mutex
	seen    map[[32]byte]observation
	samples []numeric.Uint128
	seq     uint64
}

// New constructs a Tracker.
func New(st store.Store, l *ledger.Ledger, cfg Config) *Tracker {
	return &Tracker{
		ledger: l,
		store:  st,
		cfg:    cfg,
		seen:   make(map[[32]byte]observation),
	}
}

// ObserveVote records a vote from voter at time now, if voter's weight
// (looked up fresh, so delegation changes are reflected) is at least
// VoteWeightMinimum. Votes below the minimum are ignored outright.
func (t *Tracker) ObserveVote(tx store.ReadTxn, voter account.Address, now time.Time) error {
	weight, err := t.ledger.Weight(tx, voter)
	if err != nil {
		return err
	}
	if weight.Cmp(t.cfg.VoteWeightMinimum) < 0 {
		return nil
	}
	key := voter.PublicKey().Bytes()
	t.mu.Lock()
	t.seen[key] = observation{weight: weight, seenAt: now}
	t.mu.Unlock()
	return nil
}

// Trim drops observations older than WeightInterval as of now.
func (t *Tracker) Trim(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, obs := range t.seen {
		if now.Sub(obs.seenAt) > t.cfg.WeightInterval {
			delete(t.seen, k)
		}
	}
}

// Online sums the weight of every currently-tracked representative.
func (t *Tracker) Online() numeric.Uint128 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.onlineLocked()
}

func (t *Tracker) onlineLocked() numeric.Uint128 {
	sum := numeric.Uint128{}
	for _, obs := range t.seen {
		if added, overflow := sum.Add(obs.weight); !overflow {
			sum = added
		}
	}
	return sum
}

// Sample snapshots the current online weight into the bounded in-memory
// series (trended() draws its median from this) and persists it to the
// store's online_weight table.
func (t *Tracker) Sample(ctx context.Context) error {
	t.mu.Lock()
	online := t.onlineLocked()
	t.samples = append(t.samples, online)
	if len(t.samples) > t.cfg.WeightCutoff && t.cfg.WeightCutoff > 0 {
		t.samples = t.samples[len(t.samples)-t.cfg.WeightCutoff:]
	}
	t.seq++
	seq := t.seq
	t.mu.Unlock()

	tx, err := t.store.TxBeginWrite(ctx, store.SlotOnlineWeight)
	if err != nil {
		return err
	}
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)
	b := online.Bytes()
	if err := tx.Put(store.TableOnlineWeight, key[:], b[:]); err != nil {
		tx.Abort()
		return err
	}
	return tx.Commit()
}

// Trended returns the median of the samples held in the bounded
// in-memory window (at most WeightCutoff entries).
func (t *Tracker) Trended() numeric.Uint128 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.samples) == 0 {
		return numeric.Uint128{}
	}
	sorted := append([]numeric.Uint128(nil), t.samples...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Cmp(sorted[j-1]) < 0; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted[len(sorted)/2]
}

// Delta is the confirmation quorum: max(online, trended, minimum) scaled
// by quorum_percent/100.
func (t *Tracker) Delta() numeric.Uint128 {
	online := t.Online()
	trended := t.Trended()
	base := online
	if trended.Cmp(base) > 0 {
		base = trended
	}
	if t.cfg.MinimumWeight.Cmp(base) > 0 {
		base = t.cfg.MinimumWeight
	}
	return scalePercent(base, t.cfg.QuorumPercent)
}

func scalePercent(v numeric.Uint128, percent int) numeric.Uint128 {
	b := v.Bytes()
	n := new(big.Int).SetBytes(b[:])
	n.Mul(n, big.NewInt(int64(percent)))
	n.Div(n, big.NewInt(100))
	out := n.Bytes()
	var padded [16]byte
	copy(padded[16-len(out):], out)
	var result numeric.Uint128
	_ = result.SetBytes(padded[:])
	return result
}

// RunSampler ticks Sample and Trim every SampleInterval until ctx is
// cancelled.
func (t *Tracker) RunSampler(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Trim(time.Now())
			_ = t.Sample(ctx)
		}
	}
}
