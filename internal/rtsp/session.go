package rtsp

import (
	"bufio"
	"crypto/rand"
	"fmt"
	"net"
	"time"

	"github.com/looplab/fsm"

	"github.com/jfg3rd/doorbell-core/internal/errkind"
	"github.com/jfg3rd/doorbell-core/internal/rtpcommon"
)

// MaxSessions bounds concurrent RTSP viewers per §4.2; a SETUP beyond the
// limit gets 453 Not Enough Bandwidth rather than starving the existing
// sessions' frame fan-out.
const MaxSessions = 2

// SessionTimeout is the inactivity window (no PLAY/TEARDOWN/keepalive,
// §4.2) after which a session is torn down without waiting for TEARDOWN.
const SessionTimeout = 60 * time.Second

// FrameInterval targets ~15 fps video fan-out, §4.2.
const FrameInterval = 67 * time.Millisecond

// MinAudioInterval is the floor of the AAC fan-out cadence, §4.2:
// audioInterval never returns less than this (a 1024-sample frame lasts
// 128ms at 8kHz and 64ms at 16kHz, both above it). The streamer also uses
// it as the wait bound when pulling one AAC frame.
const MinAudioInterval = 20 * time.Millisecond

// rtpClockRate is the RTP-JPEG timestamp clock from RFC 2435: 90kHz.
const rtpClockRate = 90000

// TrackTransport is one SETUP negotiation result: either TCP-interleaved
// on the control connection, or UDP to the client's announced port pair.
type TrackTransport struct {
	Negotiated bool
	UseTCP     bool
	TCPChannel int // RTP channel; RTCP is TCPChannel+1

	ClientIP       net.IP
	ClientRTPPort  int
	ClientRTCPPort int
}

// Session is one RTSP viewer's server-side state, per §4.2's session data
// model: a session-id, independent video/audio transport negotiations,
// per-track RTP counters, play/setup flags, and the timestamps the
// streamer and timeout sweep need.
type Session struct {
	ID       string
	ClientIP net.IP

	conn   net.Conn
	reader *bufio.Reader
	fsm    *fsm.FSM

	HasVideo   bool
	HasAudio   bool
	AudioSetup bool
	IsPlaying  bool

	Video TrackTransport
	Audio TrackTransport

	VideoCounters *rtpcommon.Counters
	AudioCounters *rtpcommon.Counters

	VideoBackoff *Backoff
	AudioBackoff *Backoff

	videoUDP *net.UDPConn
	audioUDP *net.UDPConn

	LastFrameAt    time.Time
	LastAudioAt    time.Time
	LastActivityAt time.Time
}

func newSessionID() string {
	lowMS := uint32(time.Now().UnixMilli()) & 0x00FFFFFF
	var hi [1]byte
	_, _ = rand.Read(hi[:])
	id := uint32(hi[0])<<24 | lowMS
	return fmt.Sprintf("%08x", id)
}

func newSSRC() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (s *Session) touch() {
	s.LastActivityAt = time.Now()
}

// MarkTrackSetup records that a SETUP negotiated (or re-negotiated) a
// track transport, for the session FSM's observability trail.
func (s *Session) MarkTrackSetup() {
	sessionTransition(s.fsm, "setup_track")
}

// MarkPlaying transitions the session into PLAY, per §4.2's "is-playing
// implies at least one track set up" invariant (enforced by the PLAY
// handler before calling this).
func (s *Session) MarkPlaying() {
	s.IsPlaying = true
	sessionTransition(s.fsm, "play")
}

// udpConnFor lazily dials the per-track UDP socket the streamer sends
// frames through, matching the teacher's "bind once, reuse" pattern for
// RTP sockets.
func (s *Session) udpConnFor(t *TrackTransport, existing **net.UDPConn) (*net.UDPConn, error) {
	if *existing != nil {
		return *existing, nil
	}
	addr := &net.UDPAddr{IP: t.ClientIP, Port: t.ClientRTPPort}
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, errkind.New(errkind.TransportTemporary, "rtsp.dial_udp", err)
	}
	*existing = conn
	return conn, nil
}

// Close releases both per-track UDP sockets and the control connection.
// Safe to call once, from Manager.Remove or the timeout sweep.
func (s *Session) Close() {
	if s.videoUDP != nil {
		_ = s.videoUDP.Close()
	}
	if s.audioUDP != nil {
		_ = s.audioUDP.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// Manager owns the set of live RTSP sessions. Per §5's ownership table,
// only the streaming task ever touches it, so it needs no lock.
type Manager struct {
	sessions map[string]*Session
	allowUDP bool

	// LastWidth/LastHeight cache the most recently captured frame's
	// dimensions for DESCRIBE's a=framesize, since DESCRIBE is always
	// sent before any SETUP creates a session to hang the value on.
	LastWidth, LastHeight int
}

// NewManager builds an empty session table. allowUDP gates SETUP requests
// that negotiate UDP transport, per §4.2's 461 Unsupported Transport rule
// when UDP delivery is disabled.
func NewManager(allowUDP bool) *Manager {
	return &Manager{sessions: map[string]*Session{}, allowUDP: allowUDP}
}

// SetLastFrameSize records the most recently captured frame's dimensions.
func (m *Manager) SetLastFrameSize(w, h int) {
	m.LastWidth, m.LastHeight = w, h
}

// New allocates a session if the table has room, or returns an error for
// the caller to translate into 453 Not Enough Bandwidth.
func (m *Manager) New(remote net.Addr) (*Session, error) {
	if len(m.sessions) >= MaxSessions {
		return nil, errkind.New(errkind.ResourceExhaustion, "rtsp.session_limit", nil)
	}
	clientIP, _, _ := net.SplitHostPort(remote.String())
	sess := &Session{
		ID:           newSessionID(),
		ClientIP:     net.ParseIP(clientIP),
		VideoBackoff: NewBackoff(),
		AudioBackoff: NewBackoff(),
		fsm:          newSessionFSM(),
	}
	sess.touch()
	m.sessions[sess.ID] = sess
	return sess, nil
}

// Get returns a session by id, or nil.
func (m *Manager) Get(id string) *Session {
	return m.sessions[id]
}

// Remove tears a session down and drops it from the table.
func (m *Manager) Remove(id string) {
	if sess, ok := m.sessions[id]; ok {
		sessionTransition(sess.fsm, "teardown")
		sess.Close()
		delete(m.sessions, id)
	}
}

// Playing returns every session currently in the PLAY state, for the
// streamer's per-tick fan-out.
func (m *Manager) Playing() []*Session {
	var out []*Session
	for _, s := range m.sessions {
		if s.IsPlaying {
			out = append(out, s)
		}
	}
	return out
}

// SweepTimeouts removes sessions idle longer than SessionTimeout.
func (m *Manager) SweepTimeouts(now time.Time) {
	for id, s := range m.sessions {
		if now.Sub(s.LastActivityAt) > SessionTimeout {
			sessionTransition(s.fsm, "timeout")
			s.Close()
			delete(m.sessions, id)
		}
	}
}

