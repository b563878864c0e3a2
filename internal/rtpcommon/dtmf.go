package rtpcommon

import "time"

// DTMFDigit is an RFC 4733 telephone-event digit, grounded on the teacher's
// pkg/media.DTMFDigit enum.
type DTMFDigit uint8

const (
	Digit0 DTMFDigit = 0
	Digit1 DTMFDigit = 1
	Digit2 DTMFDigit = 2
	Digit3 DTMFDigit = 3
	Digit4 DTMFDigit = 4
	Digit5 DTMFDigit = 5
	Digit6 DTMFDigit = 6
	Digit7 DTMFDigit = 7
	Digit8 DTMFDigit = 8
	Digit9 DTMFDigit = 9
	DigitStar  DTMFDigit = 10
	DigitPound DTMFDigit = 11
	DigitA DTMFDigit = 12
	DigitB DTMFDigit = 13
	DigitC DTMFDigit = 14
	DigitD DTMFDigit = 15
)

// Rune maps a digit to the keypad character per §4.1's digit mapping:
// 0-9 -> '0'..'9', 10 -> '*', 11 -> '#', 12-15 -> 'A'..'D'.
func (d DTMFDigit) Rune() rune {
	switch {
	case d <= Digit9:
		return rune('0' + d)
	case d == DigitStar:
		return '*'
	case d == DigitPound:
		return '#'
	case d >= DigitA && d <= DigitD:
		return rune('A' + (d - DigitA))
	default:
		return '?'
	}
}

// DTMFEvent is one decoded RFC 4733 telephone-event payload.
type DTMFEvent struct {
	Digit      DTMFDigit
	EndOfEvent bool
	Volume     uint8
	Duration   uint16 // in RTP clock-rate units
	Timestamp  uint32
}

// DecodeDTMF parses an RFC 4733 telephone-event payload. payload must be at
// least 4 bytes; the caller has already checked the packet's payload type
// against the negotiated DTMF payload type.
func DecodeDTMF(payload []byte, rtpTimestamp uint32) (DTMFEvent, bool) {
	if len(payload) < 4 {
		return DTMFEvent{}, false
	}
	return DTMFEvent{
		Digit:      DTMFDigit(payload[0] & 0x0F),
		EndOfEvent: payload[1]&0x80 != 0,
		Volume:     payload[1] & 0x3F,
		Duration:   uint16(payload[2])<<8 | uint16(payload[3]),
		Timestamp:  rtpTimestamp,
	}, true
}

// EncodeDTMF serializes an RFC 4733 telephone-event payload.
func EncodeDTMF(digit DTMFDigit, end bool, volume uint8, duration uint16) []byte {
	data := make([]byte, 4)
	data[0] = byte(digit) & 0x0F
	if end {
		data[1] |= 0x80
	}
	data[1] |= volume & 0x3F
	data[2] = byte(duration >> 8)
	data[3] = byte(duration)
	return data
}

// DTMFDeduper suppresses duplicate end-of-event markers that arrive within
// 250 ms of each other and fires a caller-registered callback at most once
// per unique digit, per §4.1.
type DTMFDeduper struct {
	onDigit      func(DTMFDigit)
	activeDigit  DTMFDigit
	haveActive   bool
	lastEndAt    time.Time
	lastEndDigit DTMFDigit
}

// NewDTMFDeduper builds a deduper that invokes onDigit the first time each
// new digit is observed.
func NewDTMFDeduper(onDigit func(DTMFDigit)) *DTMFDeduper {
	return &DTMFDeduper{onDigit: onDigit}
}

const duplicateEndWindow = 250 * time.Millisecond

// Feed processes one decoded event at the given wall-clock time.
func (d *DTMFDeduper) Feed(ev DTMFEvent, now time.Time) {
	if ev.EndOfEvent {
		if d.haveActive && d.lastEndDigit == ev.Digit && now.Sub(d.lastEndAt) < duplicateEndWindow {
			return
		}
		d.lastEndDigit = ev.Digit
		d.lastEndAt = now
		d.haveActive = false
		return
	}

	if d.haveActive && d.activeDigit == ev.Digit {
		return
	}
	d.activeDigit = ev.Digit
	d.haveActive = true
	if d.onDigit != nil {
		d.onDigit(ev.Digit)
	}
}
