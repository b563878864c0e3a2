package rtsp

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfg3rd/doorbell-core/internal/audio"
	"github.com/jfg3rd/doorbell-core/internal/errkind"
)

// ListenPort is the fixed RTSP control-plane port, §4.2.
const ListenPort = 8554

const (
	acceptPollInterval = 50 * time.Millisecond
	handshakeTimeout   = 10 * time.Second
)

// Server is the RTSP 1.0 control-plane listener from §4.2: one TCP
// listener with a polled accept loop, and a blocking per-client handshake
// (OPTIONS through PLAY) that runs on the streaming task itself, so the
// session table is only ever touched by that task. While a handshake is in
// progress, other clients and the frame fan-out wait for it. Once a
// session starts PLAYing, its control connection is handed off to the
// streaming task's PollSessionControl.
type Server struct {
	listener *net.TCPListener
	manager  *Manager
	localIP  string

	micEnabled func() bool
	aac        *audio.Pipeline

	logger zerolog.Logger
}

// NewServer binds the RTSP listener. micEnabled is polled at SETUP time
// (not cached), since the mic can be toggled at runtime.
func NewServer(localIP string, manager *Manager, micEnabled func() bool, aac *audio.Pipeline, logger zerolog.Logger) (*Server, error) {
	l, err := net.ListenTCP("tcp4", &net.TCPAddr{Port: ListenPort})
	if err != nil {
		return nil, errkind.New(errkind.TransportPermanent, "rtsp.listen", err)
	}
	return &Server{
		listener: l, manager: manager, localIP: localIP,
		micEnabled: micEnabled, aac: aac,
		logger: logger.With().Str("component", "rtsp").Logger(),
	}, nil
}

// Close releases the listener. Live sessions are torn down by the
// manager's timeout sweep or explicit TEARDOWN, not by this call.
func (s *Server) Close() error {
	return s.listener.Close()
}

// SetAACPipeline wires in the AAC pipeline once it becomes available,
// since the camera bring-up sequence starts the RTSP server before the
// microphone/AAC pipeline finishes initializing, per §4.5.
func (s *Server) SetAACPipeline(aac *audio.Pipeline) {
	s.aac = aac
}

// PollAccept makes one 50ms-bounded accept attempt. A successful accept
// runs the client's handshake to completion (PLAY hand-off, close, or a
// read stalled past the per-request timeout) before returning; a timeout
// or transient error is swallowed, matching the SIP transport's
// non-blocking read pattern.
func (s *Server) PollAccept() {
	if err := s.listener.SetDeadline(time.Now().Add(acceptPollInterval)); err != nil {
		return
	}
	conn, err := s.listener.AcceptTCP()
	if err != nil {
		return
	}
	s.handshake(conn)
}

// handshake blocks on one client's control connection until it either
// starts PLAYing (handed off to the streaming loop), sends TEARDOWN or an
// unsupported method (connection closed), or a read stalls past the
// per-request timeout (connection dropped silently).
func (s *Server) handshake(conn *net.TCPConn) {
	reader := bufio.NewReader(conn)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
			conn.Close()
			return
		}
		req, ok := ParseRequest(reader)
		if !ok {
			conn.Close()
			return
		}

		resp, sess, closeConn := s.dispatch(req, conn)
		if resp != nil {
			if _, err := conn.Write(resp.Bytes()); err != nil {
				conn.Close()
				return
			}
		}
		if closeConn {
			conn.Close()
			return
		}
		if sess != nil && sess.IsPlaying {
			sess.conn = conn
			sess.reader = reader
			conn.SetReadDeadline(time.Time{})
			return
		}
	}
}

func (s *Server) dispatch(req *Request, conn *net.TCPConn) (*Response, *Session, bool) {
	switch req.Method {
	case "OPTIONS":
		resp := statusResp(req, 200, "OK")
		resp.Set("Public", "DESCRIBE, SETUP, PLAY, TEARDOWN")
		return resp, nil, false
	case "DESCRIBE":
		return s.handleDescribe(req), nil, false
	case "SETUP":
		resp, sess := s.handleSetup(req, conn)
		return resp, sess, false
	case "PLAY":
		resp, sess := s.handlePlay(req)
		return resp, sess, false
	case "TEARDOWN":
		return s.handleTeardown(req)
	default:
		resp := statusResp(req, 501, "Not Implemented")
		return resp, nil, true
	}
}

func (s *Server) handleDescribe(req *Request) *Response {
	sdp := BuildDescribeSDP(s.localIP, s.manager.LastWidth, s.manager.LastHeight, s.aac)
	resp := statusResp(req, 200, "OK")
	resp.Set("Content-Base", fmt.Sprintf("rtsp://%s:%d/", s.localIP, ListenPort))
	resp.Set("Content-Type", "application/sdp")
	resp.SetBody(sdp)
	return resp
}

func (s *Server) handleSetup(req *Request, conn *net.TCPConn) (*Response, *Session) {
	transport, ok := parseTransportHeader(req.Transport)
	if !ok || (!transport.UseTCP && !s.manager.allowUDP) {
		return statusResp(req, 461, "Unsupported Transport"), nil
	}

	if req.Track == 2 && !s.micEnabled() {
		return statusResp(req, 404, "Not Found"), nil
	}

	var sess *Session
	if req.Session != "" {
		sess = s.manager.Get(req.Session)
	}
	if sess == nil {
		var err error
		sess, err = s.manager.New(conn.RemoteAddr())
		if err != nil {
			return statusResp(req, 453, "Not Enough Bandwidth"), nil
		}
	}

	clientIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	transport.ClientIP = net.ParseIP(clientIP)
	transport.Negotiated = true

	switch req.Track {
	case 2:
		sess.Audio = transport
		sess.HasAudio = true
		sess.AudioSetup = true
	default:
		sess.Video = transport
		sess.HasVideo = true
	}
	sess.MarkTrackSetup()
	sess.touch()

	resp := statusResp(req, 200, "OK")
	resp.Set("Transport", req.Transport)
	resp.Set("Session", fmt.Sprintf("%s;timeout=60", sess.ID))
	return resp, sess
}

func (s *Server) handlePlay(req *Request) (*Response, *Session) {
	sess := s.manager.Get(req.Session)
	if sess == nil || (!sess.HasVideo && !sess.HasAudio) {
		return statusResp(req, 454, "Session Not Found"), nil
	}
	sess.MarkPlaying()
	sess.touch()

	resp := statusResp(req, 200, "OK")
	resp.Set("Session", sess.ID)
	return resp, sess
}

func (s *Server) handleTeardown(req *Request) (*Response, *Session, bool) {
	sess := s.manager.Get(req.Session)
	if sess == nil {
		return statusResp(req, 454, "Session Not Found"), nil, true
	}
	s.manager.Remove(sess.ID)
	return statusResp(req, 200, "OK"), nil, true
}

// PollSessionControl checks every PLAYing session's control connection
// for a pending TEARDOWN without blocking the streaming loop's frame
// fan-out, using the same SetReadDeadline(time.Now()) non-blocking-poll
// pattern as the SIP transport's UDP reads.
func (s *Server) PollSessionControl() {
	for _, sess := range s.manager.Playing() {
		if sess.conn == nil || sess.reader == nil {
			continue
		}
		if err := sess.conn.SetReadDeadline(time.Now()); err != nil {
			continue
		}
		req, ok := ParseRequest(sess.reader)
		if !ok {
			continue
		}
		sess.touch()
		if req.Method == "TEARDOWN" {
			resp := statusResp(req, 200, "OK")
			_, _ = sess.conn.Write(resp.Bytes())
			s.manager.Remove(sess.ID)
		}
	}
}

// parseTransportHeader reads a SETUP Transport header value, recognizing
// RTP/AVP/TCP;unicast;interleaved=a-b and RTP/AVP;unicast;client_port=a-b.
// ok is false for anything else, which the caller turns into 461.
func parseTransportHeader(value string) (TrackTransport, bool) {
	var t TrackTransport
	parts := strings.Split(value, ";")
	if len(parts) == 0 {
		return t, false
	}
	t.UseTCP = strings.Contains(strings.ToUpper(parts[0]), "TCP")

	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "interleaved="):
			lo, _, _ := strings.Cut(strings.TrimPrefix(p, "interleaved="), "-")
			if n, err := strconv.Atoi(lo); err == nil {
				t.TCPChannel = n
			}
		case strings.HasPrefix(p, "client_port="):
			rng := strings.TrimPrefix(p, "client_port=")
			lo, hi, found := strings.Cut(rng, "-")
			rtpPort, _ := strconv.Atoi(lo)
			rtcpPort := rtpPort + 1
			if found {
				if n, err := strconv.Atoi(hi); err == nil {
					rtcpPort = n
				}
			}
			t.ClientRTPPort = rtpPort
			t.ClientRTCPPort = rtcpPort
		}
	}

	if !t.UseTCP && t.ClientRTPPort == 0 {
		return t, false
	}
	return t, true
}
