package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	alive bool
}

func (f *fakeChannel) Alive() bool { return f.alive }

func TestTrySendMessageBlocksAtChannelLimit(t *testing.T) {
	scoring := NewPeerScore(PeerScoreConfig{ChannelLimit: 2})
	ch := &fakeChannel{alive: true}

	require.False(t, scoring.TrySendMessage(ch))
	require.False(t, scoring.TrySendMessage(ch))
	require.True(t, scoring.TrySendMessage(ch))
}

func TestReceivedMessageFreesUpOutstanding(t *testing.T) {
	scoring := NewPeerScore(PeerScoreConfig{ChannelLimit: 1})
	ch := &fakeChannel{alive: true}

	require.False(t, scoring.TrySendMessage(ch))
	require.True(t, scoring.TrySendMessage(ch))

	scoring.ReceivedMessage(ch)
	require.False(t, scoring.TrySendMessage(ch))
}

func TestTimeoutPrunesDeadChannelsAndDecaysCounters(t *testing.T) {
	scoring := NewPeerScore(PeerScoreConfig{ChannelLimit: 4})
	alive := &fakeChannel{alive: true}
	dead := &fakeChannel{alive: false}

	for i := 0; i < 4; i++ {
		require.False(t, scoring.TrySendMessage(alive))
	}
	require.True(t, scoring.TrySendMessage(alive))

	scoring.TrySendMessage(dead)
	require.Equal(t, 2, scoring.Size())

	scoring.Timeout()
	require.Equal(t, 1, scoring.Size())

	// outstanding was 4, decayed (halved) to 2; two more sends are
	// accepted before the limit of 4 is reached again.
	require.False(t, scoring.TrySendMessage(alive))
	require.False(t, scoring.TrySendMessage(alive))
	require.True(t, scoring.TrySendMessage(alive))
}

func TestChannelSkipsBootstrapMaxedAndReturnsFirstEligible(t *testing.T) {
	scoring := NewPeerScore(PeerScoreConfig{ChannelLimit: 10})
	maxed := &fakeChannel{alive: true}
	free := &fakeChannel{alive: true}
	scoring.Sync([]Channel{maxed, free})

	got := scoring.Channel(func(ch Channel) bool { return ch == maxed })
	require.Equal(t, Channel(free), got)
}
