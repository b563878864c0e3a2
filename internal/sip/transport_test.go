package sip

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// SPEC_FULL.md: a failed send to the cached proxy address invalidates the
// cache immediately rather than waiting out the remaining 60s TTL, so the
// very next ProxyAddr call re-resolves instead of retrying a dead proxy.
func TestSendToInvalidatesProxyCacheOnFailure(t *testing.T) {
	tr, err := NewTransport("127.0.0.1", 1, nil)
	require.NoError(t, err)
	defer tr.Close()

	now := time.Now()
	addr, err := tr.ProxyAddr(now)
	require.NoError(t, err)
	require.NotNil(t, tr.resolved)
	firstResolvedAt := tr.resolvedAt

	// Closing the socket forces WriteToUDP to fail without needing a real
	// unreachable destination.
	require.NoError(t, tr.conn.Close())
	err = tr.SendTo([]byte("x"), addr)
	require.Error(t, err)
	require.Nil(t, tr.resolved)

	// Re-resolving well within the 60s TTL window must not reuse the
	// invalidated cache entry.
	later := now.Add(time.Second)
	conn2, err := net.ListenUDP("udp4", &net.UDPAddr{})
	require.NoError(t, err)
	tr.conn = conn2
	defer conn2.Close()

	addr2, err := tr.ProxyAddr(later)
	require.NoError(t, err)
	require.Equal(t, addr.String(), addr2.String())
	require.True(t, tr.resolvedAt.After(firstResolvedAt))
}
