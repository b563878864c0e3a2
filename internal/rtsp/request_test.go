package rtsp

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRequestExtractsFields(t *testing.T) {
	raw := "SETUP rtsp://192.168.1.1:8554/mjpeg/1/track1 RTSP/1.0\r\n" +
		"CSeq: 3\r\n" +
		"Transport: RTP/AVP/TCP;unicast;interleaved=0-1\r\n" +
		"Session: deadbeef;timeout=60\r\n" +
		"\r\n"
	req, ok := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	require.True(t, ok)
	require.Equal(t, "SETUP", req.Method)
	require.Equal(t, "3", req.CSeq)
	require.Equal(t, "deadbeef", req.Session)
	require.Equal(t, "RTP/AVP/TCP;unicast;interleaved=0-1", req.Transport)
	require.Equal(t, 1, req.Track)
}

func TestParseRequestTrackFromURI(t *testing.T) {
	raw := "SETUP rtsp://h/mjpeg/1/track2 RTSP/1.0\r\nCSeq: 1\r\n\r\n"
	req, ok := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	require.True(t, ok)
	require.Equal(t, 2, req.Track)
}

func TestParseRequestShortLineFails(t *testing.T) {
	_, ok := ParseRequest(bufio.NewReader(strings.NewReader("GARBAGE\r\n\r\n")))
	require.False(t, ok)
}

func TestParseRequestTruncatedHeadersFails(t *testing.T) {
	raw := "OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n"
	_, ok := ParseRequest(bufio.NewReader(strings.NewReader(raw)))
	require.False(t, ok)
}

func TestResponseBytesRendersStatusLineAndBody(t *testing.T) {
	resp := NewResponse(200, "OK")
	resp.Set("CSeq", "1")
	resp.SetBody([]byte("v=0\r\n"))

	out := string(resp.Bytes())
	require.True(t, strings.HasPrefix(out, "RTSP/1.0 200 OK\r\n"))
	require.Contains(t, out, "CSeq: 1\r\n")
	require.Contains(t, out, "Content-Length: 5\r\n")
	require.True(t, strings.HasSuffix(out, "v=0\r\n"))
}
