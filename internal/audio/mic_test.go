package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMicCaptureDisabledReturnsFalse(t *testing.T) {
	bus := NewBus(MicSourcePDM)
	mic := NewMicCapture(bus, &SimulatedCapture{}, false)

	out := make([]int16, 10)
	require.False(t, mic.Read(out, 10*time.Millisecond))
}

func TestMicCaptureMutedReturnsFalse(t *testing.T) {
	bus := NewBus(MicSourcePDM)
	mic := NewMicCapture(bus, &SimulatedCapture{}, true)
	mic.SetMuted(true)

	out := make([]int16, 10)
	require.False(t, mic.Read(out, 10*time.Millisecond))
}

func TestMicCaptureReadsAndGains(t *testing.T) {
	bus := NewBus(MicSourcePDM)
	sim := &SimulatedCapture{Samples: []int16{1000}}
	mic := NewMicCapture(bus, sim, true)
	mic.SetGain(2.0)

	out := make([]int16, 4)
	require.True(t, mic.Read(out, 10*time.Millisecond))
	for _, s := range out {
		require.Equal(t, int16(2000), s)
	}
}

func TestMicCaptureClipsOnOverdrive(t *testing.T) {
	bus := NewBus(MicSourcePDM)
	sim := &SimulatedCapture{Samples: []int16{20000}}
	mic := NewMicCapture(bus, sim, true)
	mic.SetGain(4.0)

	out := make([]int16, 1)
	require.True(t, mic.Read(out, 10*time.Millisecond))
	require.Equal(t, int16(32767), out[0])
}

func TestMicCaptureExternalSourceRequiresTX(t *testing.T) {
	bus := NewBus(MicSourceExternalI2S)
	mic := NewMicCapture(bus, &SimulatedCapture{}, true)

	out := make([]int16, 4)
	require.False(t, mic.Read(out, 10*time.Millisecond))

	bus.EnableTX()
	require.True(t, mic.Read(out, 10*time.Millisecond))
}
