package audio

import (
	"math"
	"sync"
	"time"
)

// RawPlayback is the hardware-facing leaf a real build implements against
// an I2S DAC driver.
type RawPlayback interface {
	// WriteFrames writes stereo-interleaved PCM, blocking up to timeout.
	// Returns false on timeout/contention.
	WriteFrames(frames []int16, timeout time.Duration) bool
}

// SimulatedPlayback discards audio, standing in for a physical DAC.
type SimulatedPlayback struct {
	mu      sync.Mutex
	Written int
}

func (s *SimulatedPlayback) WriteFrames(frames []int16, _ time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Written += len(frames)
	return true
}

// dmaBufCount mirrors I2S_DMA_BUF_COUNT from the original firmware (see
// DESIGN.md); the flush at the end of playback drains DmaBufCount+2
// buffers of silence.
const dmaBufCount = 6

const gongChunkSamples = 256

// SpeakerOutput writes 16kHz mono PCM (duplicated to stereo) to the Audio
// Bus playback channel, applying volume and serializing gong playback
// against other writers, per §4.4.
type SpeakerOutput struct {
	bus      *Bus
	raw      RawPlayback
	gongLock sync.Mutex
	volumeQ8 int32 // 0-256+, applied as volume/256
	gong     []int16
}

// NewSpeakerOutput builds a SpeakerOutput bound to bus's TX channel. gong is
// the embedded 16kHz mono gong waveform; if nil, PlayGong synthesizes a
// two-tone fallback per §4.4.
func NewSpeakerOutput(bus *Bus, raw RawPlayback, gong []int16) *SpeakerOutput {
	return &SpeakerOutput{bus: bus, raw: raw, volumeQ8: 256, gong: gong}
}

// SetVolume sets playback volume as a multiplier, 1.0 is unity.
func (s *SpeakerOutput) SetVolume(mult float64) {
	s.volumeQ8 = int32(mult * 256)
}

// Write sends mono PCM to the speaker, duplicating each sample to a stereo
// frame, applying volume, and timing out per the caller-supplied deadline
// (typically 400ms for general playback, 5ms for the SIP RTP receive path).
func (s *SpeakerOutput) Write(pcm []int16, timeout time.Duration) bool {
	s.primeTX(timeout)
	stereo := scaleToStereo(pcm, s.volumeQ8)
	return s.raw.WriteFrames(stereo, timeout)
}

// primeTX enables TX and, only when it was not already enabled, feeds three
// DMA buffers of silence first so the DAC locks onto the word-clock before
// any non-silent sample arrives, per §4.4.
func (s *SpeakerOutput) primeTX(timeout time.Duration) {
	wasEnabled := s.bus.TXEnabled()
	s.bus.EnableTX()
	if wasEnabled {
		return
	}
	silence := make([]int16, gongChunkSamples*2)
	for i := 0; i < 3; i++ {
		s.raw.WriteFrames(silence, timeout)
	}
}

func scaleToStereo(pcm []int16, volumeQ8 int32) []int16 {
	out := make([]int16, len(pcm)*2)
	for i, sample := range pcm {
		v := int32(sample) * volumeQ8 / 256
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i*2] = int16(v)
		out[i*2+1] = int16(v)
	}
	return out
}

// FlushAndStop writes DmaBufCount+2 silence buffers then releases TX,
// unless the external mic still needs BCLK, per §4.4.
func (s *SpeakerOutput) FlushAndStop() {
	silence := make([]int16, gongChunkSamples*2)
	for i := 0; i < dmaBufCount+2; i++ {
		s.raw.WriteFrames(silence, 400*time.Millisecond)
	}
	_ = s.bus.DisableTX()
}

// PlayGong plays the embedded gong waveform (or synthesizes one) at
// volume*20/10000 headroom, fire-and-forget per §6's async contract.
func (s *SpeakerOutput) PlayGong(volume int) {
	go s.playGongSync(volume)
}

func (s *SpeakerOutput) playGongSync(volume int) {
	if !s.gongLock.TryLock() {
		return // a gong-class task already owns TX; mutually exclusive per §5
	}
	defer s.gongLock.Unlock()

	samples := s.gong
	if len(samples) == 0 {
		samples = synthesizeGong()
	}

	// §4.4: gong playback scales by volume*20/10000 (20% headroom),
	// expressed here as a Q8 fixed-point multiplier for scaleToStereo.
	headroomQ8 := int32(float64(volume) * 20.0 / 10000.0 * 256.0)
	s.primeTX(400 * time.Millisecond)
	for start := 0; start < len(samples); start += gongChunkSamples {
		end := start + gongChunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		chunk := scaleToStereo(samples[start:end], headroomQ8)
		if !s.raw.WriteFrames(chunk, 400*time.Millisecond) {
			break
		}
	}
	s.FlushAndStop()
}

// synthesizeGong builds the two-decaying-sines fallback (880Hz then 660Hz,
// 1/3 second each at 16kHz) used when no embedded gong resource is present.
func synthesizeGong() []int16 {
	const sampleRate = 16000
	const toneLen = sampleRate / 3

	out := make([]int16, 0, toneLen*2)
	out = append(out, decayingSine(880, toneLen, sampleRate)...)
	out = append(out, decayingSine(660, toneLen, sampleRate)...)
	return out
}

func decayingSine(freqHz float64, n, sampleRate int) []int16 {
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(sampleRate)
		decay := math.Exp(-3 * t)
		out[i] = int16(decay * 16000 * math.Sin(2*math.Pi*freqHz*t))
	}
	return out
}
