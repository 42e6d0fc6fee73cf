package dyport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_AllocatePorts(t *testing.T) {
	ports, err := AllocatePorts(5)
	require.NoError(t, err)
	require.Len(t, ports, 5)

	seen := make(map[int]struct{})
	for _, p := range ports {
		require.GreaterOrEqual(t, p, minPort)
		seen[p] = struct{}{}
	}
	require.Len(t, seen, 5)

	addr, err := AllocateAddr()
	require.NoError(t, err)
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}
