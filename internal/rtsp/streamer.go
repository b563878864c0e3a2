package rtsp

import (
	"net"
	"time"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/jfg3rd/doorbell-core/internal/audio"
	"github.com/jfg3rd/doorbell-core/internal/camera"
	"github.com/jfg3rd/doorbell-core/internal/jpegscan"
	"github.com/jfg3rd/doorbell-core/internal/metrics"
	"github.com/jfg3rd/doorbell-core/internal/rtpcommon"
)

const (
	metricLabelVideo = "video"
	metricLabelAudio = "audio"

	// aacFrameSamples mirrors internal/audio's fixed AAC-LC frame size:
	// the RTP timestamp for AAC-hbr always advances by exactly this many
	// samples per frame, independent of real capture jitter, per §4.2.
	aacFrameSamples = 1024
)

// Streamer drives one tick of the §4.2 per-session fan-out loop: capture
// at most once per tick regardless of viewer count, fragment per RFC
// 2435/3640, and send to every PLAYing session on its own negotiated
// transport. Owned exclusively by the streaming task per §5.
type Streamer struct {
	manager *Manager
	cam     camera.Camera
	aac     *audio.Pipeline
	metrics *metrics.Registry
	logger  zerolog.Logger
}

// NewStreamer builds a Streamer. aac may be nil if the mic is disabled or
// the AAC pipeline failed to initialize; the audio fan-out is then
// permanently skipped.
func NewStreamer(manager *Manager, cam camera.Camera, aac *audio.Pipeline, m *metrics.Registry, logger zerolog.Logger) *Streamer {
	return &Streamer{
		manager: manager, cam: cam, aac: aac, metrics: m,
		logger: logger.With().Str("component", "rtsp_streamer").Logger(),
	}
}

// SetAACPipeline wires in the AAC pipeline once the microphone bring-up
// step completes, mirroring Server.SetAACPipeline.
func (st *Streamer) SetAACPipeline(aac *audio.Pipeline) {
	st.aac = aac
}

// Tick sweeps timed-out sessions, then fans video and audio out to every
// PLAYing session. Safe to call every iteration of the streaming task's
// busy loop even when no session is playing.
func (st *Streamer) Tick(now time.Time) {
	st.manager.SweepTimeouts(now)
	playing := st.manager.Playing()
	if st.metrics != nil {
		st.metrics.RTSPActiveSessions.Set(float64(len(playing)))
	}
	if len(playing) == 0 {
		return
	}
	st.fanoutVideo(playing, now)
	st.fanoutAudio(playing, now)
}

func (st *Streamer) fanoutVideo(sessions []*Session, now time.Time) {
	if st.cam == nil || !st.cam.IsReady() {
		return
	}
	if !anyDue(sessions, now, FrameInterval, func(s *Session) (bool, time.Time) { return s.HasVideo, s.LastFrameAt }) {
		return
	}

	frame, ok := st.cam.Capture()
	if !ok {
		return
	}
	defer st.cam.Return(frame)

	scan := jpegscan.Scan(frame.Buf)
	data := jpegscan.ScanData(frame.Buf, scan)
	st.manager.SetLastFrameSize(frame.Width, frame.Height)

	for _, s := range sessions {
		if !s.HasVideo || !due(s.LastFrameAt, now, FrameInterval) {
			continue
		}
		if s.VideoCounters == nil {
			s.VideoCounters = rtpcommon.NewCounters(newSSRC(), 0, 0)
		}
		deltaMs := FrameInterval.Milliseconds()
		if !s.LastFrameAt.IsZero() {
			deltaMs = now.Sub(s.LastFrameAt).Milliseconds()
		}
		s.VideoCounters.AdvanceTimestamp(uint32(deltaMs) * (rtpClockRate / 1000))

		packets := PacketizeJPEG(s.VideoCounters, data, scan, frame.Width, frame.Height)
		st.sendFragments(s, &s.Video, s.VideoBackoff, packets, metricLabelVideo)
		s.LastFrameAt = now
	}
}

func (st *Streamer) fanoutAudio(sessions []*Session, now time.Time) {
	if st.aac == nil || st.aac.Failed() {
		return
	}
	interval := audioInterval(st.aac.SampleRate())
	if !anyDue(sessions, now, interval, func(s *Session) (bool, time.Time) { return s.AudioSetup, s.LastAudioAt }) {
		return
	}

	au, ok := st.aac.GetFrame(MinAudioInterval)
	if !ok {
		return
	}

	for _, s := range sessions {
		if !s.AudioSetup || !due(s.LastAudioAt, now, interval) {
			continue
		}
		if s.AudioCounters == nil {
			s.AudioCounters = rtpcommon.NewCounters(newSSRC(), 0, 0)
		}
		s.AudioCounters.AdvanceTimestamp(aacFrameSamples)

		pkt := PacketizeAAC(s.AudioCounters, au)
		st.sendFragments(s, &s.Audio, s.AudioBackoff, []*rtp.Packet{pkt}, metricLabelAudio)
		s.LastAudioAt = now
	}
}

// audioInterval derives the AAC fan-out cadence from one frame's duration
// at the pipeline's target rate, floored at MinAudioInterval.
func audioInterval(sampleRate int) time.Duration {
	d := time.Duration(aacFrameSamples) * time.Second / time.Duration(sampleRate)
	if d < MinAudioInterval {
		return MinAudioInterval
	}
	return d
}

func due(last time.Time, now time.Time, interval time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= interval
}

func anyDue(sessions []*Session, now time.Time, interval time.Duration, pick func(*Session) (bool, time.Time)) bool {
	for _, s := range sessions {
		if eligible, last := pick(s); eligible && due(last, now, interval) {
			return true
		}
	}
	return false
}

// sendFragments writes every packet to one session's track transport,
// TCP-interleaved or UDP per SETUP's negotiation, backing off per-track
// on UDP write failure and yielding at least 1ms between UDP fragments so
// the streaming task's busy loop never floods one client.
func (st *Streamer) sendFragments(s *Session, t *TrackTransport, backoff *Backoff, packets []*rtp.Packet, label string) {
	if !t.Negotiated {
		return
	}
	for i, pkt := range packets {
		raw, err := pkt.Marshal()
		if err != nil {
			continue
		}

		var sendErr error
		if t.UseTCP {
			sendErr = writeInterleaved(s.conn, t.TCPChannel, raw)
		} else {
			if !backoff.Allow() {
				continue
			}
			sendErr = st.sendUDP(s, t, raw)
		}

		if sendErr != nil {
			backoff.OnFailure()
			st.logger.Debug().Err(sendErr).Str("session", s.ID).Msg("rtsp send failed")
			continue
		}
		backoff.OnSuccess()
		if st.metrics != nil {
			st.metrics.RTSPPacketsSent.WithLabelValues(label).Inc()
		}
		if !t.UseTCP && i < len(packets)-1 {
			time.Sleep(time.Millisecond)
		}
	}
}

func (st *Streamer) sendUDP(s *Session, t *TrackTransport, raw []byte) error {
	var slot **net.UDPConn
	if t == &s.Video {
		slot = &s.videoUDP
	} else {
		slot = &s.audioUDP
	}
	conn, err := s.udpConnFor(t, slot)
	if err != nil {
		return err
	}
	_, err = conn.Write(raw)
	return err
}

// writeInterleaved sends one RTP packet over the TCP control connection
// using RTSP's "$<channel><len:16>" framing, with a partial-write loop
// since net.Conn.Write may return short writes under backpressure.
func writeInterleaved(conn net.Conn, channel int, raw []byte) error {
	header := []byte{'$', byte(channel), byte(len(raw) >> 8), byte(len(raw))}
	if err := writeFull(conn, header); err != nil {
		return err
	}
	return writeFull(conn, raw)
}

func writeFull(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
