// Package backlogscan implements the rate-limited walk of account-head
// state spec.md names as the backlog scanner: a background worker that
// walks every account the store knows about, looking for accounts whose
// head block has outrun its confirmation height, and activates them into
// the bounded backlog index so the rollback loop can see them.
package backlogscan

import (
	"context"
	"time"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/boundedbacklog"
	"github.com/yxse/nan-node/event"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/ratelimit"
	"github.com/yxse/nan-node/store"
)

// Config bounds the scan's pace, matching spec.md §6's
// backlog_scan.{enable,batch_size,rate_limit} options.
type Config struct {
	Enable    bool
	BatchSize int
	RateLimit int
}

// Batch is one round's outcome: every account looked at (Scanned) and the
// subset found behind and handed to boundedbacklog.Activate (Activated).
type Batch struct {
	Scanned   []account.Address
	Activated []account.Address
}

// Scanner owns the walk; it holds no state across rounds beyond the
// cursor key, so a restart simply starts over from the first account.
type Scanner struct {
	store  store.Store
	ledger *ledger.Ledger
	backlog *boundedbacklog.Backlog
	cfg    Config
	limiter *ratelimit.Bucket

	onBatch event.Set[Batch]
}

// New constructs a Scanner pacing itself to cfg.RateLimit accounts/second
// (0 means unlimited, matching ratelimit.Bucket's convention).
func New(st store.Store, l *ledger.Ledger, backlog *boundedbacklog.Backlog, cfg Config) *Scanner {
	rate := float64(cfg.RateLimit)
	capacity := cfg.RateLimit
	if cfg.RateLimit <= 0 {
		capacity, rate = 0, 0
	}
	return &Scanner{
		store:   st,
		ledger:  l,
		backlog: backlog,
		cfg:     cfg,
		limiter: ratelimit.New(capacity, rate),
	}
}

// OnBatch returns the event set fired once per batch of up to BatchSize
// accounts read during a walk of the account table.
func (s *Scanner) OnBatch() *event.Set[Batch] { return &s.onBatch }

// Run walks the account table end to end, repeating once it reaches the
// last account, until ctx is cancelled. Disabled scanners (Config.Enable
// false) return immediately.
func (s *Scanner) Run(ctx context.Context) {
	if !s.cfg.Enable {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.runPass(ctx); err != nil {
			return
		}
	}
}

func (s *Scanner) runPass(ctx context.Context) error {
	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1024
	}

	var lowerBound []byte
	for {
		tx, err := s.store.TxBeginRead()
		if err != nil {
			return err
		}
		addrs, next, err := s.readBatch(tx, lowerBound, batchSize)
		tx.End()
		if err != nil {
			return err
		}
		if len(addrs) == 0 {
			return nil
		}

		batch := Batch{Scanned: addrs}
		for _, addr := range addrs {
			if err := s.limiter.Wait(ctx, 1); err != nil {
				return nil
			}
			activated, err := s.scanOne(addr)
			if err != nil {
				continue
			}
			if activated {
				batch.Activated = append(batch.Activated, addr)
			}
		}
		s.onBatch.Notify(batch)

		if next == nil {
			return nil
		}
		lowerBound = next
	}
}

func (s *Scanner) readBatch(tx store.ReadTxn, lowerBound []byte, n int) ([]account.Address, []byte, error) {
	it, err := tx.Iterate(store.TableAccount, lowerBound)
	if err == store.ErrNotFound {
		// No account has ever been written; nothing to scan yet.
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	var addrs []account.Address
	var next []byte
	skipFirst := lowerBound != nil
	for it.Next() {
		key := it.Key()
		if skipFirst {
			// lowerBound is the last key handled by the previous pass;
			// resume just past it.
			skipFirst = false
			continue
		}
		var pub numeric.Uint256
		if err := pub.SetBytes(key); err != nil {
			continue
		}
		addrs = append(addrs, account.FromPublicKey(pub))
		if len(addrs) >= n {
			next = append([]byte(nil), key...)
			break
		}
	}
	return addrs, next, nil
}

// scanOne reports whether addr's head has outrun its confirmation height,
// activating it into the bounded backlog index when it has.
func (s *Scanner) scanOne(addr account.Address) (bool, error) {
	tx, err := s.store.TxBeginRead()
	if err != nil {
		return false, err
	}
	defer tx.End()

	info, ok, err := s.ledger.AccountInfoOf(tx, addr)
	if err != nil || !ok {
		return false, err
	}
	confInfo, hasConf, err := s.ledger.ConfirmationHeightOf(tx, addr)
	if err != nil {
		return false, err
	}
	height := uint64(0)
	if hasConf {
		height = confInfo.Height
	}
	if height >= info.BlockCount {
		return false, nil
	}
	if err := s.backlog.Activate(tx, addr); err != nil {
		return false, err
	}
	return true, nil
}

// RunEvery is a convenience for callers that want a ticking driver loop
// instead of Run's tight re-scan, matching the style of other components'
// RunXxx(ctx, interval) background loops.
func RunEvery(ctx context.Context, s *Scanner, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.runPass(ctx)
		}
	}
}
