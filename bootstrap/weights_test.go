package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPreconfiguredWeightsBetaDecodesEveryEntry(t *testing.T) {
	require.Len(t, PreconfiguredWeightsBeta, 11)
	for _, w := range PreconfiguredWeightsBeta {
		require.False(t, w.Account.IsZero())
		require.False(t, w.Weight.IsZero())
	}
}

func TestSeedWeightsPrioritizesEveryEntryAtMax(t *testing.T) {
	sets := New(testConfig(), nil)
	sets.SeedWeights(PreconfiguredWeightsBeta[:2])

	for _, w := range PreconfiguredWeightsBeta[:2] {
		require.True(t, sets.Prioritized(w.Account))
		require.Equal(t, sets.cfg.PriorityMax, sets.Priority(w.Account))
	}
}
