// Package siprtp implements the SIP call's voice-media path from §4.1/§6:
// a dedicated UDP socket carrying G.711 RTP in both directions, plus
// inbound RFC 4733 DTMF telephone-events, wired to the shared Audio Bus. It is
// grounded on the teacher's pkg/rtp/rtp_session.go send/receive loop shape,
// generalized from the teacher's SDP-negotiated dynamic codec set down to
// this module's fixed PCMU/PCMA choice.
package siprtp

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/jfg3rd/doorbell-core/internal/audio"
	"github.com/jfg3rd/doorbell-core/internal/errkind"
	"github.com/jfg3rd/doorbell-core/internal/g711"
	"github.com/jfg3rd/doorbell-core/internal/metrics"
	"github.com/jfg3rd/doorbell-core/internal/rtpcommon"
	"github.com/jfg3rd/doorbell-core/internal/sip"
)

// LocalPort is the fixed UDP port the SIP RTP session binds, per §6.
const LocalPort = 40000

// frameSamples is 20ms of 8kHz G.711 audio: the SIP side's RTP packetization
// interval per §4.1, distinct from the RTSP side's AAC 1024-sample frames.
const frameSamples = 160

const ptime = 20 * time.Millisecond

// Session owns the call's RTP socket for its lifetime: one per active call,
// created when the call becomes active and torn down on hangup, per §5's
// "destroyed when the call ends" rule.
type Session struct {
	conn       *net.UDPConn
	remoteAddr *net.UDPAddr

	payloadType g711.PayloadType
	dtmfPT      uint8

	localSends, localReceives   bool
	remoteSends, remoteReceives bool

	mic     *audio.MicCapture
	speaker *audio.SpeakerOutput

	counters *rtpcommon.Counters
	dedupe   *rtpcommon.DTMFDeduper

	metrics *metrics.Registry
	logger  zerolog.Logger

	stopped int32 // atomic bool
	done    chan struct{}
}

// New binds the session's RTP socket. It does not start sending until
// Start is called with the negotiated call parameters.
func New(mic *audio.MicCapture, speaker *audio.SpeakerOutput, m *metrics.Registry, logger zerolog.Logger) (*Session, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: LocalPort})
	if err != nil {
		return nil, errkind.New(errkind.TransportPermanent, "siprtp.listen", err)
	}
	return &Session{
		conn: conn, mic: mic, speaker: speaker, metrics: m,
		logger: logger.With().Str("component", "siprtp").Logger(),
		done:   make(chan struct{}),
	}, nil
}

// Start negotiates the call's direction/codec from an ActiveCall record
// and, if the local side sends audio, starts the 20ms transmit cadence in
// its own goroutine, per §6.
func (s *Session) Start(call sip.ActiveCall, onDigit func(rtpcommon.DTMFDigit)) {
	ip := net.ParseIP(call.RTPRemoteIP)
	s.remoteAddr = &net.UDPAddr{IP: ip, Port: call.RTPRemotePort}
	s.payloadType = g711.PayloadType(call.AudioPayload)
	s.dtmfPT = call.DTMFPayload
	s.localSends = call.LocalSends
	s.localReceives = call.LocalReceives
	s.remoteSends = call.RemoteSends
	s.remoteReceives = call.RemoteReceives
	s.counters = rtpcommon.NewCounters(newSSRC(), 0, 0)
	s.dedupe = rtpcommon.NewDTMFDeduper(onDigit)

	if s.localSends && s.remoteReceives {
		go s.transmitLoop()
	}
}

// transmitLoop runs for the life of the call, emitting one G.711 RTP
// packet every 20ms regardless of mic health: a disabled or muted mic (or
// a capture timeout) falls back to silence codewords so the remote side
// never sees the stream stall, per §4.3/§4.4's silence-fallback rule.
func (s *Session) transmitLoop() {
	ticker := time.NewTicker(ptime)
	defer ticker.Stop()

	mic16k := make([]int16, frameSamples*2)
	pcm := make([]int16, frameSamples)
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if atomic.LoadInt32(&s.stopped) != 0 {
				return
			}
			var payload []byte
			if s.mic != nil && s.mic.Read(mic16k, ptime/2) {
				for i := range pcm {
					pcm[i] = mic16k[i*2] // 16kHz -> 8kHz, decimation by 2
				}
				payload = g711.EncodeFrame(s.payloadType, pcm)
			} else {
				payload = make([]byte, frameSamples)
				silence := g711.SilenceByte(s.payloadType)
				for i := range payload {
					payload[i] = silence
				}
			}
			pkt := s.counters.BuildPacket(uint8(s.payloadType), false, payload)
			s.counters.AdvanceTimestamp(frameSamples)
			s.sendPacket(pkt)
		}
	}
}

func (s *Session) sendPacket(pkt *rtp.Packet) {
	raw, err := pkt.Marshal()
	if err != nil {
		return
	}
	if _, err := s.conn.WriteToUDP(raw, s.remoteAddr); err != nil {
		s.logger.Debug().Err(err).Msg("rtp send failed")
		return
	}
	if s.metrics != nil {
		s.metrics.RTPPacketsSent.WithLabelValues(payloadLabel(pkt.PayloadType)).Inc()
	}
}

func payloadLabel(pt uint8) string {
	switch g711.PayloadType(pt) {
	case g711.PCMA:
		return "pcma"
	default:
		return "pcmu"
	}
}

// maxPacketsPerPoll bounds Poll to at most 4 datagrams per call, per
// spec.md §4.3 ("up to 4 packets per iteration") — this keeps a flood of
// inbound RTP from starving the rest of the 50ms main-task tick.
const maxPacketsPerPoll = 4

// Poll performs one non-blocking receive pass, per §5's MSG_DONTWAIT
// contract: the main loop calls this every tick rather than the receive
// path blocking anything. Packets from a source other than the
// negotiated remote address are dropped, matching §4.1's source-IP
// filtering rule for call media.
func (s *Session) Poll() {
	if atomic.LoadInt32(&s.stopped) != 0 {
		return
	}
	buf := make([]byte, 1500)
	for i := 0; i < maxPacketsPerPoll; i++ {
		if err := s.conn.SetReadDeadline(time.Now()); err != nil {
			return
		}
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if s.remoteAddr == nil || !addr.IP.Equal(s.remoteAddr.IP) {
			continue
		}
		s.handlePacket(buf[:n])
	}
}

func (s *Session) handlePacket(raw []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return // protocol-parse failure: silently dropped per §7
	}

	if pkt.PayloadType == s.dtmfPT {
		if ev, ok := rtpcommon.DecodeDTMF(pkt.Payload, pkt.Timestamp); ok && s.dedupe != nil {
			s.dedupe.Feed(ev, time.Now())
		}
		return
	}

	if pkt.PayloadType != uint8(s.payloadType) {
		return
	}
	if !s.remoteSends || !s.localReceives || s.speaker == nil {
		return
	}
	pcm := g711.DecodeFrame(s.payloadType, pkt.Payload)
	up := make([]int16, len(pcm)*2) // 8kHz -> 16kHz by sample-hold
	for i, v := range pcm {
		up[i*2], up[i*2+1] = v, v
	}
	s.speaker.Write(up, 5*time.Millisecond)
}

// Stop tears the session down: it stops the transmit goroutine, flushes
// the speaker if it was playing, and closes the socket. Safe to call
// once, at hangup, per §5's "destroyed when the call ends" lifecycle.
func (s *Session) Stop() {
	if !atomic.CompareAndSwapInt32(&s.stopped, 0, 1) {
		return
	}
	close(s.done)
	if s.speaker != nil {
		s.speaker.FlushAndStop()
	}
	_ = s.conn.Close()
}

func newSSRC() uint32 {
	return uint32(time.Now().UnixNano())
}
