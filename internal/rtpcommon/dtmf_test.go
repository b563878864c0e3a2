package rtpcommon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDigitRuneMapping(t *testing.T) {
	require.Equal(t, '0', Digit0.Rune())
	require.Equal(t, '9', Digit9.Rune())
	require.Equal(t, '*', DigitStar.Rune())
	require.Equal(t, '#', DigitPound.Rune())
	require.Equal(t, 'A', DigitA.Rune())
	require.Equal(t, 'D', DigitD.Rune())
}

func TestEncodeDecodeDTMFRoundTrip(t *testing.T) {
	payload := EncodeDTMF(Digit5, true, 10, 1600)
	ev, ok := DecodeDTMF(payload, 12345)
	require.True(t, ok)
	require.Equal(t, Digit5, ev.Digit)
	require.True(t, ev.EndOfEvent)
	require.Equal(t, uint8(10), ev.Volume)
	require.Equal(t, uint16(1600), ev.Duration)
	require.Equal(t, uint32(12345), ev.Timestamp)
}

func TestDecodeDTMFRejectsShortPayload(t *testing.T) {
	_, ok := DecodeDTMF([]byte{1, 2, 3}, 0)
	require.False(t, ok)
}

func TestDTMFDeduperFiresOncePerDigit(t *testing.T) {
	var fired []DTMFDigit
	d := NewDTMFDeduper(func(dig DTMFDigit) { fired = append(fired, dig) })

	now := time.Now()
	d.Feed(DTMFEvent{Digit: Digit1}, now)
	d.Feed(DTMFEvent{Digit: Digit1}, now.Add(20*time.Millisecond)) // repeat, same event
	d.Feed(DTMFEvent{Digit: Digit1, EndOfEvent: true}, now.Add(40*time.Millisecond))

	require.Equal(t, []DTMFDigit{Digit1}, fired)
}

func TestDTMFDeduperRefiresSameDigitAfterGenuineGap(t *testing.T) {
	var fired []DTMFDigit
	d := NewDTMFDeduper(func(dig DTMFDigit) { fired = append(fired, dig) })

	now := time.Now()
	d.Feed(DTMFEvent{Digit: Digit2}, now)
	d.Feed(DTMFEvent{Digit: Digit2, EndOfEvent: true}, now.Add(10*time.Millisecond))
	// Button pressed again well after the dedup window and after the prior
	// end-of-event: this is a genuinely new keypress and must fire again.
	d.Feed(DTMFEvent{Digit: Digit2}, now.Add(300*time.Millisecond))

	require.Equal(t, []DTMFDigit{Digit2, Digit2}, fired)
}

func TestDTMFDeduperAllowsNewDigitAfterEnd(t *testing.T) {
	var fired []DTMFDigit
	d := NewDTMFDeduper(func(dig DTMFDigit) { fired = append(fired, dig) })

	now := time.Now()
	d.Feed(DTMFEvent{Digit: Digit1}, now)
	d.Feed(DTMFEvent{Digit: Digit1, EndOfEvent: true}, now.Add(20*time.Millisecond))
	d.Feed(DTMFEvent{Digit: Digit2}, now.Add(50*time.Millisecond))

	require.Equal(t, []DTMFDigit{Digit1, Digit2}, fired)
}
