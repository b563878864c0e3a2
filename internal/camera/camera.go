// Package camera defines the camera collaborator contract from §6
// (capture/return/is_ready) and a software-simulated implementation that
// produces synthetic JPEG frames, since no physical sensor driver is
// available on this port — the camera is an explicit external
// collaborator per the Non-goals, not a component this module owns.
package camera

import "sync"

// Frame is a borrowed JPEG buffer: callers must call Return when done so
// the camera can reuse the underlying storage, mirroring the original
// firmware's capture()/return() borrow discipline instead of Go-GC'd
// per-call allocation.
type Frame struct {
	Buf    []byte
	Width  int
	Height int
}

// Camera is the collaborator interface the core consumes.
type Camera interface {
	Capture() (Frame, bool)
	Return(Frame)
	IsReady() bool
}

// Simulated generates a tiny valid JPEG (SOI, SOF0 with fixed dimensions,
// SOS, a scan-data filler, EOI) on every Capture call, so the RTSP/MJPEG
// paths have real frames to packetize end-to-end without hardware.
type Simulated struct {
	mu      sync.Mutex
	ready   bool
	width   int
	height  int
	counter byte
}

// NewSimulated builds a ready simulated camera at the given resolution.
func NewSimulated(width, height int) *Simulated {
	return &Simulated{ready: true, width: width, height: height}
}

func (s *Simulated) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// SetReady lets tests and the orchestrator simulate a sensor fault.
func (s *Simulated) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *Simulated) Capture() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return Frame{}, false
	}
	s.counter++
	return Frame{Buf: buildJPEG(s.width, s.height, s.counter), Width: s.width, Height: s.height}, true
}

// Return is a no-op for the simulated camera: each Capture allocates fresh
// storage, so there is nothing to recycle.
func (s *Simulated) Return(Frame) {}

func buildJPEG(width, height int, seed byte) []byte {
	buf := []byte{0xFF, 0xD8} // SOI

	sof0 := []byte{
		0xFF, 0xC0, 0x00, 0x11, 0x08,
		byte(height >> 8), byte(height),
		byte(width >> 8), byte(width),
		0x03,
		0x01, 0x22, 0x00, // Y, 4:2:0 sampling
		0x02, 0x11, 0x01, // Cb
		0x03, 0x11, 0x01, // Cr
	}
	buf = append(buf, sof0...)

	sos := []byte{0xFF, 0xDA, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3F, 0x00}
	buf = append(buf, sos...)

	scanLen := 64
	for i := 0; i < scanLen; i++ {
		buf = append(buf, byte(int(seed)+i)%256)
	}

	buf = append(buf, 0xFF, 0xD9) // EOI
	return buf
}
