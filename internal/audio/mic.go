package audio

import (
	"sync"
	"sync/atomic"
	"time"
)

// RawCapture is the hardware-facing leaf a real build implements against an
// I2S/PDM driver. SimulatedCapture below is the software-only stand-in used
// when no physical microphone is attached.
type RawCapture interface {
	// ReadFrames fills frames with stereo-interleaved [L,R,L,R,...] samples
	// (R is always zero for the external I2S mic; mono sources just repeat
	// L into R). Returns false on timeout.
	ReadFrames(frames []int16, timeout time.Duration) bool
}

// SimulatedCapture generates silence (or, if Samples is set, a fixed
// waveform played on loop) in place of a physical microphone. Useful for
// running the module end-to-end without hardware.
type SimulatedCapture struct {
	Samples []int16
	pos     int
	mu      sync.Mutex
}

func (s *SimulatedCapture) ReadFrames(frames []int16, _ time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(frames); i += 2 {
		var l int16
		if len(s.Samples) > 0 {
			l = s.Samples[s.pos%len(s.Samples)]
			s.pos++
		}
		frames[i] = l
		if i+1 < len(frames) {
			frames[i+1] = 0
		}
	}
	return true
}

// MicCapture reads 16kHz mono PCM from the Audio Bus capture channel,
// applies software gain, and respects the mute/enable flags from NVS
// config, per §4.4.
type MicCapture struct {
	bus     *Bus
	raw     RawCapture
	source  MicSource
	enabled int32 // atomic bool
	muted   int32 // atomic bool
	gainQ8  int32 // atomic fixed-point gain, 256 == 1.0x
}

// NewMicCapture builds a MicCapture bound to bus's RX channel, reading from
// raw. enabled/muted reflect NVS's mic_en/mic_mute at construction time;
// callers update them via SetEnabled/SetMuted as config changes.
func NewMicCapture(bus *Bus, raw RawCapture, enabled bool) *MicCapture {
	m := &MicCapture{bus: bus, raw: raw, source: bus.MicSource(), gainQ8: 256}
	if enabled {
		atomic.StoreInt32(&m.enabled, 1)
	}
	return m
}

func (m *MicCapture) SetEnabled(v bool) {
	if v {
		atomic.StoreInt32(&m.enabled, 1)
	} else {
		atomic.StoreInt32(&m.enabled, 0)
	}
}

func (m *MicCapture) SetMuted(v bool) {
	if v {
		atomic.StoreInt32(&m.muted, 1)
	} else {
		atomic.StoreInt32(&m.muted, 0)
	}
}

// SetGain sets software gain as a multiplier; 1.0 is unity.
func (m *MicCapture) SetGain(mult float64) {
	atomic.StoreInt32(&m.gainQ8, int32(mult*256))
}

func (m *MicCapture) IsEnabled() bool { return atomic.LoadInt32(&m.enabled) != 0 }
func (m *MicCapture) IsMuted() bool   { return atomic.LoadInt32(&m.muted) != 0 }
func (m *MicCapture) Source() MicSource { return m.source }

// Read fills out with n mono 16kHz PCM samples (len(out) == n), applying
// software gain. Returns false if the mic is disabled, muted, or the
// underlying read timed out.
func (m *MicCapture) Read(out []int16, timeout time.Duration) bool {
	if !m.IsEnabled() || m.IsMuted() {
		return false
	}
	if err := m.bus.EnableRX(); err != nil {
		return false
	}

	stereo := make([]int16, len(out)*2)
	if !m.raw.ReadFrames(stereo, timeout) {
		return false
	}

	gain := int32(atomic.LoadInt32(&m.gainQ8))
	for i := range out {
		l := int32(stereo[i*2]) * gain / 256
		if l > 32767 {
			l = 32767
		} else if l < -32768 {
			l = -32768
		}
		out[i] = int16(l)
	}
	return true
}
