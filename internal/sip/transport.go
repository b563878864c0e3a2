package sip

import (
	"net"
	"time"

	"github.com/jfg3rd/doorbell-core/internal/errkind"
	"github.com/jfg3rd/doorbell-core/internal/netinfo"
)

// LocalPort is the fixed UDP port the SIP user agent binds, per §6.
const LocalPort = 5062

// proxyCacheTTL is how long a resolved proxy address is trusted before the
// next registration attempt re-resolves it, per §4.1.
const proxyCacheTTL = 60 * time.Second

// Transport owns the single non-blocking UDP socket the user agent sends
// and receives on, plus the proxy-address resolution-and-cache-with-
// gateway-fallback logic §4.1 describes as a residential-PBX convention.
type Transport struct {
	conn *net.UDPConn

	proxyHost string
	proxyPort int
	network   netinfo.Network

	resolved   *net.UDPAddr
	resolvedAt time.Time
}

// NewTransport binds the fixed local SIP port and returns a Transport ready
// to resolve and send to proxyHost:proxyPort, falling back to the DHCP
// gateway from network when DNS resolution of proxyHost fails.
func NewTransport(proxyHost string, proxyPort int, network netinfo.Network) (*Transport, error) {
	addr := &net.UDPAddr{Port: LocalPort}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, errkind.New(errkind.TransportPermanent, "sip.transport.listen", err)
	}
	if err := conn.SetReadBuffer(1 << 16); err != nil {
		_ = err // best-effort; not fatal per §7 transport-temporary handling
	}
	return &Transport{conn: conn, proxyHost: proxyHost, proxyPort: proxyPort, network: network}, nil
}

// Close releases the UDP socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the bound local address.
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// ProxyAddr resolves (or returns the cached resolution of) the configured
// SIP proxy. A failed DNS lookup falls back to the network collaborator's
// DHCP-assigned default gateway, the residential-PBX convention §4.1
// describes; a failure there too is a transport-temporary error for
// this attempt (registration and ring are skipped until it recovers).
func (t *Transport) ProxyAddr(now time.Time) (*net.UDPAddr, error) {
	if t.resolved != nil && now.Sub(t.resolvedAt) < proxyCacheTTL {
		return t.resolved, nil
	}

	if ip := net.ParseIP(t.proxyHost); ip != nil {
		t.resolved = &net.UDPAddr{IP: ip, Port: t.proxyPort}
		t.resolvedAt = now
		return t.resolved, nil
	}

	if ips, err := net.LookupIP(t.proxyHost); err == nil && len(ips) > 0 {
		t.resolved = &net.UDPAddr{IP: ips[0], Port: t.proxyPort}
		t.resolvedAt = now
		return t.resolved, nil
	}

	if t.network != nil {
		if gw := t.network.GatewayIP(); gw != nil {
			t.resolved = &net.UDPAddr{IP: gw, Port: t.proxyPort}
			t.resolvedAt = now
			return t.resolved, nil
		}
	}

	return nil, errkind.New(errkind.TransportTemporary, "sip.transport.resolve_proxy", nil)
}

// SendTo transmits raw to addr. Failures are transport-temporary per §7:
// callers log and clear the current attempt, never crash. A failed send to
// the cached proxy address invalidates that cache entry immediately rather
// than waiting out the remaining proxyCacheTTL, so the next ProxyAddr call
// re-resolves instead of retrying a proxy that just failed.
func (t *Transport) SendTo(raw []byte, addr *net.UDPAddr) error {
	_, err := t.conn.WriteToUDP(raw, addr)
	if err != nil {
		if t.resolved != nil && addr.String() == t.resolved.String() {
			t.resolved = nil
		}
		return errkind.New(errkind.TransportTemporary, "sip.transport.send", err)
	}
	return nil
}

// ReadDatagram performs one non-blocking receive, per §5's
// MSG_DONTWAIT-never-suspends suspension contract. Returns ok=false (no
// error) when nothing is pending.
func (t *Transport) ReadDatagram(buf []byte) (int, *net.UDPAddr, bool) {
	if err := t.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, nil, false
	}
	n, addr, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, nil, false
	}
	return n, addr, true
}
