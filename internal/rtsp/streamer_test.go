package rtsp

import (
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func TestAudioIntervalFloorsAtMinimum(t *testing.T) {
	// 1024 samples at 16000 Hz is 64ms, above the 20ms floor.
	require.Equal(t, 64*time.Millisecond, audioInterval(16000))
	// A very high rate would fall under the floor; derive one deliberately.
	require.Equal(t, MinAudioInterval, audioInterval(1000000))
}

func TestDueReportsZeroTimeAsImmediatelyDue(t *testing.T) {
	require.True(t, due(time.Time{}, time.Now(), time.Second))
}

func TestDueRespectsInterval(t *testing.T) {
	now := time.Now()
	require.False(t, due(now, now.Add(10*time.Millisecond), 50*time.Millisecond))
	require.True(t, due(now, now.Add(60*time.Millisecond), 50*time.Millisecond))
}

func TestAnyDueSkipsIneligibleSessions(t *testing.T) {
	now := time.Now()
	sessions := []*Session{
		{HasVideo: false, LastFrameAt: time.Time{}},
		{HasVideo: true, LastFrameAt: now},
	}
	pick := func(s *Session) (bool, time.Time) { return s.HasVideo, s.LastFrameAt }
	require.False(t, anyDue(sessions, now.Add(10*time.Millisecond), FrameInterval, pick))
	require.True(t, anyDue(sessions, now.Add(FrameInterval+time.Millisecond), FrameInterval, pick))
}

// §4.2: TCP-interleaved framing is "$" + channel byte + 16-bit big-endian
// length, followed by the raw RTP packet.
func TestWriteInterleavedFramesPacketCorrectly(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	pkt := &rtp.Packet{Header: rtp.Header{Version: 2, PayloadType: 26, SequenceNumber: 1, Timestamp: 1, SSRC: 1}, Payload: []byte{1, 2, 3, 4}}
	raw, err := pkt.Marshal()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- writeInterleaved(server, 0, raw) }()

	buf := make([]byte, 4)
	_, err = readFull(t, client, buf)
	require.NoError(t, err)
	require.Equal(t, byte('$'), buf[0])
	require.Equal(t, byte(0), buf[1])
	length := int(buf[2])<<8 | int(buf[3])
	require.Equal(t, len(raw), length)

	payload := make([]byte, length)
	_, err = readFull(t, client, payload)
	require.NoError(t, err)
	require.Equal(t, raw, payload)
	require.NoError(t, <-done)
}

func readFull(t *testing.T, conn net.Conn, buf []byte) (int, error) {
	t.Helper()
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSendFragmentsSkipsUnnegotiatedTransport(t *testing.T) {
	st := &Streamer{}
	sess := &Session{}
	// Video.Negotiated is false (zero value): sendFragments must return
	// without touching sess.conn (nil) or panicking.
	require.NotPanics(t, func() {
		st.sendFragments(sess, &sess.Video, NewBackoff(), nil, metricLabelVideo)
	})
}
