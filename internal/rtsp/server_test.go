package rtsp

import (
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// tcpConnPair dials a local loopback listener and returns the client-side
// *net.TCPConn, the kind of connection handleSetup/handleTeardown need for
// conn.RemoteAddr() without binding the fixed production ListenPort.
func tcpConnPair(t *testing.T) (*net.TCPConn, func()) {
	t.Helper()
	ln, err := net.ListenTCP("tcp4", &net.TCPAddr{})
	require.NoError(t, err)

	acceptErr := make(chan error, 1)
	var server *net.TCPConn
	go func() {
		c, err := ln.AcceptTCP()
		server = c
		acceptErr <- err
	}()

	client, err := net.DialTCP("tcp4", nil, ln.Addr().(*net.TCPAddr))
	require.NoError(t, err)
	require.NoError(t, <-acceptErr)

	cleanup := func() {
		client.Close()
		if server != nil {
			server.Close()
		}
		ln.Close()
	}
	return client, cleanup
}

func newTestServer(allowUDP bool, micEnabled bool) *Server {
	manager := NewManager(allowUDP)
	return &Server{
		manager:    manager,
		localIP:    "192.168.1.1",
		micEnabled: func() bool { return micEnabled },
		logger:     zerolog.Nop(),
	}
}

func TestDispatchOptionsListsSupportedMethods(t *testing.T) {
	s := newTestServer(true, true)
	conn, cleanup := tcpConnPair(t)
	defer cleanup()

	req := &Request{Method: "OPTIONS", CSeq: "1"}
	resp, sess, closeConn := s.dispatch(req, conn)
	require.Equal(t, 200, resp.StatusCode)
	require.Nil(t, sess)
	require.False(t, closeConn)
	require.Contains(t, string(resp.Bytes()), "DESCRIBE, SETUP, PLAY, TEARDOWN")
}

func TestDispatchDescribeReturnsSDPBody(t *testing.T) {
	s := newTestServer(true, true)
	conn, cleanup := tcpConnPair(t)
	defer cleanup()

	req := &Request{Method: "DESCRIBE", CSeq: "2"}
	resp, _, _ := s.dispatch(req, conn)
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(resp.Bytes()), "application/sdp")
	require.Contains(t, string(resp.Bytes()), "m=video")
}

func TestDispatchUnknownMethodReturnsNotImplemented(t *testing.T) {
	s := newTestServer(true, true)
	conn, cleanup := tcpConnPair(t)
	defer cleanup()

	req := &Request{Method: "RECORD", CSeq: "3"}
	resp, sess, closeConn := s.dispatch(req, conn)
	require.Equal(t, 501, resp.StatusCode)
	require.Nil(t, sess)
	require.True(t, closeConn)
}

// §4.2: SETUP for the audio track is rejected with 404 when the mic is
// not currently enabled.
func TestSetupAudioTrackRejectedWhenMicDisabled(t *testing.T) {
	s := newTestServer(true, false)
	conn, cleanup := tcpConnPair(t)
	defer cleanup()

	req := &Request{Method: "SETUP", CSeq: "1", Track: 2, Transport: "RTP/AVP/TCP;unicast;interleaved=2-3"}
	resp, sess := s.handleSetup(req, conn)
	require.Equal(t, 404, resp.StatusCode)
	require.Nil(t, sess)
}

// §4.2: an unsupported/unparseable Transport header is rejected with 461.
func TestSetupRejectsUnsupportedTransport(t *testing.T) {
	s := newTestServer(true, true)
	conn, cleanup := tcpConnPair(t)
	defer cleanup()

	req := &Request{Method: "SETUP", CSeq: "1", Track: 1, Transport: "garbage"}
	resp, sess := s.handleSetup(req, conn)
	require.Equal(t, 461, resp.StatusCode)
	require.Nil(t, sess)
}

// §4.2: UDP transport is rejected with 461 when the manager disallows it.
func TestSetupRejectsUDPWhenDisallowed(t *testing.T) {
	s := newTestServer(false, true)
	conn, cleanup := tcpConnPair(t)
	defer cleanup()

	req := &Request{Method: "SETUP", CSeq: "1", Track: 1, Transport: "RTP/AVP;unicast;client_port=6000-6001"}
	resp, sess := s.handleSetup(req, conn)
	require.Equal(t, 461, resp.StatusCode)
	require.Nil(t, sess)
}

// §4.2: full SETUP -> PLAY -> TEARDOWN happy path over TCP-interleaved
// transport, covering the §3 session lifecycle end to end.
func TestSetupPlayTeardownLifecycle(t *testing.T) {
	s := newTestServer(true, true)
	conn, cleanup := tcpConnPair(t)
	defer cleanup()

	setupReq := &Request{Method: "SETUP", CSeq: "1", Track: 1, Transport: "RTP/AVP/TCP;unicast;interleaved=0-1"}
	setupResp, sess := s.handleSetup(setupReq, conn)
	require.Equal(t, 200, setupResp.StatusCode)
	require.NotNil(t, sess)
	require.True(t, sess.HasVideo)
	require.False(t, sess.IsPlaying)

	playReq := &Request{Method: "PLAY", CSeq: "2", Session: sess.ID}
	playResp, playSess := s.handlePlay(playReq)
	require.Equal(t, 200, playResp.StatusCode)
	require.True(t, playSess.IsPlaying)

	teardownReq := &Request{Method: "TEARDOWN", CSeq: "3", Session: sess.ID}
	teardownResp, after, closeConn := s.handleTeardown(teardownReq)
	require.Equal(t, 200, teardownResp.StatusCode)
	require.Nil(t, after)
	require.True(t, closeConn)
	require.Nil(t, s.manager.Get(sess.ID))
}

func TestPlayUnknownSessionReturnsSessionNotFound(t *testing.T) {
	s := newTestServer(true, true)
	resp, sess := s.handlePlay(&Request{Method: "PLAY", CSeq: "1", Session: "nonexistent"})
	require.Equal(t, 454, resp.StatusCode)
	require.Nil(t, sess)
}

func TestTeardownUnknownSessionReturnsSessionNotFound(t *testing.T) {
	s := newTestServer(true, true)
	resp, sess, closeConn := s.handleTeardown(&Request{Method: "TEARDOWN", CSeq: "1", Session: "nonexistent"})
	require.Equal(t, 454, resp.StatusCode)
	require.Nil(t, sess)
	require.True(t, closeConn)
}

func TestParseTransportHeaderVariants(t *testing.T) {
	tcp, ok := parseTransportHeader("RTP/AVP/TCP;unicast;interleaved=4-5")
	require.True(t, ok)
	require.True(t, tcp.UseTCP)
	require.Equal(t, 4, tcp.TCPChannel)

	udp, ok := parseTransportHeader("RTP/AVP;unicast;client_port=7000-7001")
	require.True(t, ok)
	require.False(t, udp.UseTCP)
	require.Equal(t, 7000, udp.ClientRTPPort)
	require.Equal(t, 7001, udp.ClientRTCPPort)

	_, ok = parseTransportHeader("RTP/AVP;unicast")
	require.False(t, ok)
}
