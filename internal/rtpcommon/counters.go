// Package rtpcommon holds the RTP plumbing shared by the SIP RTP session
// and the RTSP JPEG/AAC packetizers: atomic sequence/timestamp counters, a
// packet builder over github.com/pion/rtp, and RFC 4733 telephone-event
// DTMF encode/decode. Grounded on the teacher's pkg/rtp/rtp_session.go
// (atomic counter fields, SSRC-per-session) and pkg/media/dtmf.go
// (DTMFDigit enum, payload serialization), generalized so every RTP
// producer in this module (SIP voice, RTSP video, RTSP audio) shares one
// implementation instead of three copies.
package rtpcommon

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

// Counters tracks a single SSRC's monotonically increasing sequence number
// and RTP timestamp, safe for concurrent use by a sender goroutine and a
// fan-out loop.
type Counters struct {
	ssrc    uint32
	seq     uint32 // atomic, truncated to uint16 on read
	ts      uint32 // atomic
	initial bool
}

// NewCounters builds a counter set seeded with the given SSRC and initial
// sequence/timestamp values.
func NewCounters(ssrc uint32, initialSeq, initialTimestamp uint32) *Counters {
	return &Counters{ssrc: ssrc, seq: initialSeq, ts: initialTimestamp}
}

// NextSeq returns the next sequence number and advances the counter.
func (c *Counters) NextSeq() uint16 {
	return uint16(atomic.AddUint32(&c.seq, 1) - 1)
}

// Timestamp returns the current RTP timestamp without advancing it.
func (c *Counters) Timestamp() uint32 {
	return atomic.LoadUint32(&c.ts)
}

// AdvanceTimestamp adds delta to the timestamp, wrapping per RFC 3550's
// 32-bit modular arithmetic, and returns the new value.
func (c *Counters) AdvanceTimestamp(delta uint32) uint32 {
	return atomic.AddUint32(&c.ts, delta)
}

// SSRC returns the session's synchronization source identifier.
func (c *Counters) SSRC() uint32 {
	return c.ssrc
}

// BuildPacket constructs one RTP packet with the counters' current state,
// advancing the sequence number (but not the timestamp — callers that send
// several packets sharing one timestamp, such as JPEG fragments, call
// AdvanceTimestamp themselves between frames).
func (c *Counters) BuildPacket(payloadType uint8, marker bool, payload []byte) *rtp.Packet {
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    payloadType,
			SequenceNumber: c.NextSeq(),
			Timestamp:      c.Timestamp(),
			SSRC:           c.ssrc,
		},
		Payload: payload,
	}
}
