// Package audio models the shared full-duplex audio peripheral described
// in §4.4: one physical bus exposing a TX (speaker) and RX (mic) channel
// that share bit-clock/word-clock lines, plus the mic capture, speaker
// output, and AAC encoder pipeline built on top of it.
//
// This port has no physical I2S peripheral to drive, so Bus is an
// in-process software simulation: a mutex-guarded pair of enable flags.
// The real-hardware swap-in point is the RawCapture/RawPlayback
// interfaces in mic.go and speaker.go — a build targeting actual
// silicon implements those against a real I2S driver (the shape
// `doismellburning-samoyed` uses its `gordonklaus/portaudio` binding for)
// without touching anything above this package.
package audio

import (
	"sync"

	"github.com/jfg3rd/doorbell-core/internal/errkind"
)

// MicSource distinguishes the two mutually exclusive capture peripherals
// from §4.4; selection is boot-time only.
type MicSource uint8

const (
	MicSourceExternalI2S MicSource = iota // INMP441-equivalent, shares the bus clock
	MicSourcePDM                          // onboard PDM mic, independent port
)

// Bus owns the shared BCLK/WS lines and the TX/RX enable state. All
// enable/disable calls are serialized by one short-held mutex per §5's
// shared-resource table.
type Bus struct {
	mu        sync.Mutex
	micSource MicSource
	txEnabled bool
	rxEnabled bool
}

// NewBus builds a bus configured for the given boot-time mic source.
func NewBus(source MicSource) *Bus {
	return &Bus{micSource: source}
}

// MicSource reports the boot-time capture source.
func (b *Bus) MicSource() MicSource {
	return b.micSource
}

// EnableTX turns on the playback channel. Because TX is the clock master,
// enabling it is always safe.
func (b *Bus) EnableTX() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.txEnabled = true
}

// DisableTX turns off the playback channel, unless the external I2S mic is
// both the active source and currently enabled — in that configuration RX
// depends on TX for BCLK, and silently starving it would corrupt capture
// instead of failing loudly. Idempotent: disabling an already-disabled bus
// is a no-op, not an error.
func (b *Bus) DisableTX() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.txEnabled {
		return nil
	}
	if b.rxEnabled && b.micSource == MicSourceExternalI2S {
		return errkind.New(errkind.ResourceExhaustion, "audio.bus.disable_tx", nil)
	}
	b.txEnabled = false
	return nil
}

// EnableRX turns on the capture channel. When the mic source is the
// external I2S mic, TX must already be enabled to supply BCLK.
func (b *Bus) EnableRX() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.micSource == MicSourceExternalI2S && !b.txEnabled {
		return errkind.New(errkind.ResourceExhaustion, "audio.bus.enable_rx", nil)
	}
	b.rxEnabled = true
	return nil
}

// DisableRX turns off the capture channel. Independent of TX in both mic
// source configurations.
func (b *Bus) DisableRX() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxEnabled = false
}

// TXEnabled reports whether the playback channel is currently active.
func (b *Bus) TXEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txEnabled
}

// RXEnabled reports whether the capture channel is currently active.
func (b *Bus) RXEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rxEnabled
}
