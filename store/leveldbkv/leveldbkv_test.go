package leveldbkv

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *KV {
	t.Helper()
	kv, err := Open(filepath.Join(t.TempDir(), "peers"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestPutGetDelete(t *testing.T) {
	kv := openTest(t)
	require.NoError(t, kv.Put([]byte("peer:1"), []byte("endpoint1")))

	v, ok, err := kv.Get([]byte("peer:1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("endpoint1"), v)

	require.NoError(t, kv.Delete([]byte("peer:1")))
	_, ok, err = kv.Get([]byte("peer:1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrefixScan(t *testing.T) {
	kv := openTest(t)
	require.NoError(t, kv.Put([]byte("peer:1"), []byte("a")))
	require.NoError(t, kv.Put([]byte("peer:2"), []byte("b")))
	require.NoError(t, kv.Put([]byte("other:1"), []byte("c")))

	entries, err := kv.PrefixScan([]byte("peer:"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
}
