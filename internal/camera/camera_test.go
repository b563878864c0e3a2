package camera

import (
	"testing"

	"github.com/jfg3rd/doorbell-core/internal/jpegscan"
	"github.com/stretchr/testify/require"
)

func TestSimulatedCaptureReturnsScannableJPEG(t *testing.T) {
	cam := NewSimulated(640, 480)
	require.True(t, cam.IsReady())

	frame, ok := cam.Capture()
	require.True(t, ok)
	require.Equal(t, 640, frame.Width)
	require.Equal(t, 480, frame.Height)

	scanned := jpegscan.Scan(frame.Buf)
	require.Equal(t, jpegscan.Chroma420, scanned.Chroma)
	require.Greater(t, scanned.ScanLen, 0)
}

func TestSimulatedCaptureNotReadyFails(t *testing.T) {
	cam := NewSimulated(640, 480)
	cam.SetReady(false)

	_, ok := cam.Capture()
	require.False(t, ok)
	require.False(t, cam.IsReady())
}

func TestSimulatedCaptureFramesVaryAcrossCalls(t *testing.T) {
	cam := NewSimulated(320, 240)

	f1, ok := cam.Capture()
	require.True(t, ok)
	f2, ok := cam.Capture()
	require.True(t, ok)

	require.NotEqual(t, f1.Buf, f2.Buf)
}

func TestSimulatedReturnIsNoop(t *testing.T) {
	cam := NewSimulated(320, 240)
	frame, ok := cam.Capture()
	require.True(t, ok)
	cam.Return(frame) // must not panic or affect subsequent captures
	require.True(t, cam.IsReady())
}
