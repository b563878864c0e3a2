// Package netinfo defines the network collaborator contract from §6
// (is_connected/local_ip/gateway_ip/rssi) and a software-backed
// implementation the orchestrator can drive from Wi-Fi event callbacks
// without this module owning any actual radio driver.
package netinfo

import (
	"net"
	"sync"
	"sync/atomic"
)

// Network is the collaborator interface the core consumes.
type Network interface {
	IsConnected() bool
	LocalIP() net.IP
	GatewayIP() net.IP
	RSSI() int8
}

// Reporter is a concrete Network backed by values an external driver
// (or a test) pushes in as they change, mirroring how the original
// firmware's Wi-Fi event handler updates shared connection state.
type Reporter struct {
	mu        sync.RWMutex
	connected int32
	localIP   net.IP
	gatewayIP net.IP
	rssi      int32
}

// NewReporter starts disconnected with no addresses known.
func NewReporter() *Reporter {
	return &Reporter{}
}

func (r *Reporter) IsConnected() bool {
	return atomic.LoadInt32(&r.connected) != 0
}

func (r *Reporter) LocalIP() net.IP {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localIP
}

func (r *Reporter) GatewayIP() net.IP {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gatewayIP
}

func (r *Reporter) RSSI() int8 {
	return int8(atomic.LoadInt32(&r.rssi))
}

// SetConnected reports an association transition. Disconnecting clears
// the addresses, since a stale IP is worse than none for the AP-mode
// fallback decision the orchestrator makes from these readings.
func (r *Reporter) SetConnected(connected bool) {
	if connected {
		atomic.StoreInt32(&r.connected, 1)
		return
	}
	atomic.StoreInt32(&r.connected, 0)
	r.mu.Lock()
	r.localIP = nil
	r.gatewayIP = nil
	r.mu.Unlock()
}

// SetAddresses records the DHCP lease the driver obtained.
func (r *Reporter) SetAddresses(local, gateway net.IP) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.localIP = local
	r.gatewayIP = gateway
}

// SetRSSI records the latest signal strength sample in dBm.
func (r *Reporter) SetRSSI(rssi int8) {
	atomic.StoreInt32(&r.rssi, int32(rssi))
}
