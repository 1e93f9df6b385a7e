package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactionAllowlistIsSorted(t *testing.T) {
	keys := RedactionAllowlist()
	require.Contains(t, keys, "error")
	require.Contains(t, keys, "component")
	for i := 1; i < len(keys); i++ {
		require.LessOrEqual(t, keys[i-1], keys[i])
	}
}

func TestMaskValueLeavesEmptyValuesAlone(t *testing.T) {
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, RedactedValue, MaskValue("node-1.example.com:7075"))
}

func TestMaskFieldSkipsAllowlistedKeys(t *testing.T) {
	attr := MaskField("error", "connection refused")
	require.Equal(t, "connection refused", attr.Value.String())

	attr = MaskField("peer_address", "192.0.2.1:7075")
	require.Equal(t, RedactedValue, attr.Value.String())
}
