package bootstrap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

func addrN(n uint64) account.Address {
	return account.FromPublicKey(numeric.Uint256FromUint64(n))
}

func testConfig() Config {
	return Config{
		PriorityMax:     10.0,
		PriorityInitial: 1.0,
		PrioritiesMax:   3,
		MaxFails:        3,
		PriorityCutoff:  0.15,
		BlockingMax:     3,
		Cooldown:        time.Minute,
	}
}

func allowAll(account.Address) bool { return true }

func TestPriorityUpInsertsThenIncreases(t *testing.T) {
	sets := New(testConfig(), nil)
	a := addrN(1)

	sets.PriorityUp(a)
	require.Equal(t, 1.0, sets.Priority(a))

	sets.PriorityUp(a)
	require.Equal(t, 3.0, sets.Priority(a))
}

func TestPriorityUpIgnoresBlockedAccount(t *testing.T) {
	sets := New(testConfig(), nil)
	a := addrN(1)
	sets.PriorityUp(a)
	sets.Block(a, numeric.Uint256FromUint64(100))

	sets.PriorityUp(a)
	require.False(t, sets.Prioritized(a))
	require.True(t, sets.Blocked(a))
}

func TestPriorityDownErasesAfterRepeatedFailures(t *testing.T) {
	sets := New(testConfig(), nil)
	a := addrN(1)
	sets.PrioritySet(a, 1.0)

	for i := 0; i < 10; i++ {
		sets.PriorityDown(a)
	}

	require.False(t, sets.Prioritized(a))
	require.Equal(t, account.Address{}, sets.NextPriority(time.Now(), allowAll))
}

func TestPrioritiesEvictLowestOnOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.PrioritiesMax = 2
	sets := New(cfg, nil)

	a, b, c := addrN(1), addrN(2), addrN(3)
	sets.PrioritySet(a, 1.0)
	sets.PrioritySet(b, 5.0)
	sets.PrioritySet(c, 9.0)

	require.Equal(t, 2, sets.PrioritySize())
	require.False(t, sets.Prioritized(a))
	require.True(t, sets.Prioritized(b))
	require.True(t, sets.Prioritized(c))
}

func TestNextPriorityRespectsCooldownAndFilter(t *testing.T) {
	sets := New(testConfig(), nil)
	a, b := addrN(1), addrN(2)
	sets.PrioritySet(a, 5.0)
	sets.PrioritySet(b, 9.0)

	now := time.Now()
	sets.TimestampSet(b, now)

	got := sets.NextPriority(now, allowAll)
	require.Equal(t, 0, got.Cmp(a))

	got = sets.NextPriority(now, func(acct account.Address) bool { return acct.Cmp(a) != 0 })
	require.Equal(t, account.Address{}, got)
}

func TestBlockAndUnblockRoundTrip(t *testing.T) {
	sets := New(testConfig(), nil)
	a := addrN(1)
	dep := numeric.Uint256FromUint64(42)
	sets.PrioritySet(a, 1.0)

	sets.Block(a, dep)
	require.True(t, sets.Blocked(a))
	require.False(t, sets.Prioritized(a))

	wrong := numeric.Uint256FromUint64(99)
	sets.Unblock(a, &wrong)
	require.True(t, sets.Blocked(a))

	sets.Unblock(a, &dep)
	require.False(t, sets.Blocked(a))
	require.True(t, sets.Prioritized(a))
}

func TestDependencyUpdateAndNextBlocking(t *testing.T) {
	sets := New(testConfig(), nil)
	a := addrN(1)
	dep := numeric.Uint256FromUint64(42)
	sets.PrioritySet(a, 1.0)
	sets.Block(a, dep)

	got := sets.NextBlocking(func(block numeric.Uint256) bool { return true })
	require.Equal(t, 0, got.Cmp(dep))

	depAccount := addrN(7)
	sets.DependencyUpdate(dep, depAccount)

	require.Equal(t, numeric.Uint256{}, sets.NextBlocking(func(numeric.Uint256) bool { return true }))
}

func TestSyncDependenciesPrioritizesKnownDependencyAccounts(t *testing.T) {
	sets := New(testConfig(), nil)
	a := addrN(1)
	dep := numeric.Uint256FromUint64(42)
	depAccount := addrN(7)
	sets.PrioritySet(a, 1.0)
	sets.Block(a, dep)
	sets.DependencyUpdate(dep, depAccount)

	sets.SyncDependencies()

	require.True(t, sets.Prioritized(depAccount))
}

func TestBlockingEvictsOldestOnOverflow(t *testing.T) {
	cfg := testConfig()
	cfg.BlockingMax = 2
	sets := New(cfg, nil)

	a, b, c := addrN(1), addrN(2), addrN(3)
	sets.PrioritySet(a, 1.0)
	sets.PrioritySet(b, 1.0)
	sets.PrioritySet(c, 1.0)
	sets.Block(a, numeric.Uint256FromUint64(10))
	sets.Block(b, numeric.Uint256FromUint64(20))
	sets.Block(c, numeric.Uint256FromUint64(30))

	require.Equal(t, 2, sets.BlockingSize())
	require.False(t, sets.Blocked(a))
	require.True(t, sets.Blocked(b))
	require.True(t, sets.Blocked(c))
}
