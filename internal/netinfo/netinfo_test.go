package netinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReporterStartsDisconnected(t *testing.T) {
	r := NewReporter()
	require.False(t, r.IsConnected())
	require.Nil(t, r.LocalIP())
	require.Nil(t, r.GatewayIP())
	require.Equal(t, int8(0), r.RSSI())
}

func TestReporterTracksConnectionAndAddresses(t *testing.T) {
	r := NewReporter()
	r.SetConnected(true)
	r.SetAddresses(net.ParseIP("192.168.1.42"), net.ParseIP("192.168.1.1"))
	r.SetRSSI(-55)

	require.True(t, r.IsConnected())
	require.Equal(t, net.ParseIP("192.168.1.42"), r.LocalIP())
	require.Equal(t, net.ParseIP("192.168.1.1"), r.GatewayIP())
	require.Equal(t, int8(-55), r.RSSI())
}

func TestReporterDisconnectClearsAddresses(t *testing.T) {
	r := NewReporter()
	r.SetConnected(true)
	r.SetAddresses(net.ParseIP("192.168.1.42"), net.ParseIP("192.168.1.1"))

	r.SetConnected(false)

	require.False(t, r.IsConnected())
	require.Nil(t, r.LocalIP())
	require.Nil(t, r.GatewayIP())
}
