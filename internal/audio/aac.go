package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jfg3rd/doorbell-core/internal/errkind"
)

// AAC frame size in samples (per-channel), fixed by the AAC-LC profile.
const aacFrameSamples = 1024

// adtsHeaderLen is 7 bytes without CRC, 9 with; this pipeline emits frames
// without a CRC, matching the teacher's "strip the fixed header, keep the
// payload" pattern elsewhere in the repo for fixed-size wire headers.
const adtsHeaderLen = 7

// Encoder is the codec boundary the pipeline drives. No AAC library exists
// anywhere in the retrieval pack (see DESIGN.md); Encoder is implemented
// here as a structurally-valid placeholder that frames silence/PCM energy
// into ADTS, not a perceptually accurate AAC-LC bitstream.
type Encoder interface {
	// EncodeFrame takes exactly 1024 PCM samples at the target rate and
	// returns one ADTS-framed AAC frame, or ok=false on encoder failure.
	EncodeFrame(pcm []int16) (frame []byte, ok bool)
}

// PlaceholderEncoder emits a structurally valid ADTS frame (correct 7-byte
// header, sync word, sample-rate index, channel config) wrapping a small
// fixed-size payload derived from the input's peak amplitude. It exists
// only so the RTSP AAC track has real ADTS-shaped bytes to packetize and
// parse in tests; it is not a conformant perceptual encoder.
type PlaceholderEncoder struct {
	SampleRate int // 8000 or 16000
}

var sampleRateIndex = map[int]byte{
	96000: 0, 88200: 1, 64000: 2, 48000: 3, 44100: 4, 32000: 5,
	24000: 6, 22050: 7, 16000: 8, 12000: 9, 11025: 10, 8000: 11,
}

func (e *PlaceholderEncoder) EncodeFrame(pcm []int16) ([]byte, bool) {
	if len(pcm) != aacFrameSamples {
		return nil, false
	}
	sri, ok := sampleRateIndex[e.SampleRate]
	if !ok {
		return nil, false
	}

	var peak int16
	for _, s := range pcm {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	payload := []byte{byte(peak >> 8), byte(peak)}

	frameLen := adtsHeaderLen + len(payload)
	out := make([]byte, frameLen)
	out[0] = 0xFF
	out[1] = 0xF1 // MPEG-4, no CRC
	out[2] = (1 << 6) | (sri << 2)
	out[3] = (1 << 6) | byte(frameLen>>11) // channel config 1 (mono), low bits
	out[4] = byte(frameLen >> 3)
	out[5] = byte(frameLen<<5) | 0x1F
	out[6] = 0xFC
	copy(out[adtsHeaderLen:], payload)
	return out, true
}

// ADTSHeaderLen returns the header length (7, no CRC present) of an ADTS
// frame, used by the RTSP AAC packetizer to strip it before wrapping the
// raw AU in RFC 3640's AU-header.
func ADTSHeaderLen(frame []byte) int {
	if len(frame) < 2 {
		return 0
	}
	if frame[1]&0x01 == 0 {
		return 9 // CRC present
	}
	return 7
}

// Pipeline consumes 1024-sample PCM frames from a MicCapture and produces
// raw (header-stripped) AAC-LC AUs, per §4.4. A failed encoder init latches
// the pipeline into permanent failure: every subsequent GetFrame call
// returns false without retrying, because a partially-initialized encoder
// must never be re-entered.
type Pipeline struct {
	mic        *MicCapture
	encoder    Encoder
	srcRate    int
	targetRate int
	failed     int32 // atomic bool, latched
}

// NewPipeline builds a Pipeline. srcRate is the mic's native rate (16000);
// targetRate is 8000 or 16000 per config.
func NewPipeline(mic *MicCapture, encoder Encoder, srcRate, targetRate int) (*Pipeline, error) {
	if encoder == nil || srcRate <= 0 || targetRate <= 0 {
		return nil, errkind.New(errkind.ResourceExhaustion, "audio.aac.init", nil)
	}
	return &Pipeline{mic: mic, encoder: encoder, srcRate: srcRate, targetRate: targetRate}, nil
}

// GetFrame pulls (srcRate/targetRate)*1024 PCM samples (silence on capture
// failure), decimates to 1024 samples at targetRate, encodes, and returns
// the raw AU payload with its ADTS header stripped.
func (p *Pipeline) GetFrame(timeout time.Duration) ([]byte, bool) {
	if atomic.LoadInt32(&p.failed) != 0 {
		return nil, false
	}

	ratio := p.srcRate / p.targetRate
	if ratio < 1 {
		ratio = 1
	}
	raw := make([]int16, aacFrameSamples*ratio)
	if !p.mic.Read(raw, timeout) {
		for i := range raw {
			raw[i] = 0
		}
	}

	decimated := make([]int16, aacFrameSamples)
	for i := range decimated {
		decimated[i] = raw[i*ratio]
	}

	frame, ok := p.encoder.EncodeFrame(decimated)
	if !ok {
		atomic.StoreInt32(&p.failed, 1)
		return nil, false
	}

	hdrLen := ADTSHeaderLen(frame)
	if hdrLen >= len(frame) {
		atomic.StoreInt32(&p.failed, 1)
		return nil, false
	}
	return frame[hdrLen:], true
}

// Failed reports whether the pipeline has latched into permanent failure.
func (p *Pipeline) Failed() bool {
	return atomic.LoadInt32(&p.failed) != 0
}

// SampleRate reports the pipeline's target AAC sample rate (8000 or 16000).
func (p *Pipeline) SampleRate() int {
	return p.targetRate
}

// ascFreqIndex is the §6 AudioSpecificConfig frequency-index table.
var ascFreqIndex = map[int]uint16{
	96000: 0, 88200: 1, 64000: 2, 48000: 3, 44100: 4, 32000: 5,
	24000: 6, 22050: 7, 16000: 8, 12000: 9, 11025: 10, 8000: 11, 7350: 12,
}

// ASConfigHex renders the AudioSpecificConfig per §6's formula
// (2<<11)|(freq_index<<7)|(1<<3), as an uppercase 4-hex-digit string.
func ASConfigHex(sampleRate int) (string, bool) {
	idx, ok := ascFreqIndex[sampleRate]
	if !ok {
		return "", false
	}
	asc := uint16(2<<11) | idx<<7 | uint16(1<<3)
	return fmt.Sprintf("%04X", asc), true
}

// RTPMapValue renders the DESCRIBE a=rtpmap attribute value for this
// pipeline's target rate, per §4.2/§6, for use as an sdp.Attribute Value.
func (p *Pipeline) RTPMapValue(payloadType int) string {
	return fmt.Sprintf("%d MPEG4-GENERIC/%d/1", payloadType, p.targetRate)
}

// FmtpValue renders the DESCRIBE a=fmtp attribute value (AAC-hbr, one AU
// per packet) per §4.2/§6, for use as an sdp.Attribute Value. Returns
// ok=false if the target rate has no ASC mapping.
func (p *Pipeline) FmtpValue(payloadType int) (string, bool) {
	asc, ok := ASConfigHex(p.targetRate)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%d profile-level-id=1;mode=AAC-hbr;config=%s;SizeLength=13;IndexLength=3;IndexDeltaLength=3",
		payloadType, asc), true
}
