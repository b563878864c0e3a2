package jpegscan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildJPEG assembles a minimal synthetic JPEG: SOI, an SOF0 with a given
// Y sampling byte, an SOS with a fixed header length, scanLen bytes of scan
// data, and a trailing EOI.
func buildJPEG(ySampling byte, scanLen int) []byte {
	buf := []byte{0xFF, 0xD8} // SOI

	// SOF0: FF C0, len=17 (precision+h+w+numComp+3*component), precision=8,
	// height=2, width=2, numComponents=3, then 3 components of 3 bytes each
	// (id, hv, quantTableId). First component (Y) carries ySampling.
	sof0 := []byte{0xFF, markerSOF0, 0x00, 0x11, 0x08, 0x00, 0x02, 0x00, 0x02, 0x03}
	sof0 = append(sof0, 0x01, ySampling, 0x00) // Y
	sof0 = append(sof0, 0x02, 0x11, 0x01)      // Cb
	sof0 = append(sof0, 0x03, 0x11, 0x01)      // Cr
	buf = append(buf, sof0...)

	// SOS: FF DA, len=8 (arbitrary small header), numComponents=1, 2 bytes,
	// then 3 trailing spec bytes (Ss, Se, AhAl).
	sos := []byte{0xFF, markerSOS, 0x00, 0x08, 0x01, 0x01, 0x00, 0x00, 0x3F, 0x00}
	buf = append(buf, sos...)

	for i := 0; i < scanLen; i++ {
		buf = append(buf, byte(i%256))
	}

	buf = append(buf, 0xFF, markerEOI)
	return buf
}

func TestScanDetects422(t *testing.T) {
	buf := buildJPEG(0x21, 10)
	f := Scan(buf)
	require.Equal(t, Chroma422, f.Chroma)
	require.Equal(t, uint8(defaultQuality), f.Quality)
	require.Equal(t, 10, f.ScanLen)
}

func TestScanDetects420(t *testing.T) {
	buf := buildJPEG(0x22, 6)
	f := Scan(buf)
	require.Equal(t, Chroma420, f.Chroma)
	require.Equal(t, 6, f.ScanLen)
}

func TestScanUnknownSamplingDefaultsTo420(t *testing.T) {
	buf := buildJPEG(0x11, 4)
	f := Scan(buf)
	require.Equal(t, Chroma420, f.Chroma)
}

func TestScanStripsTrailingEOI(t *testing.T) {
	buf := buildJPEG(0x22, 20)
	f := Scan(buf)
	data := ScanData(buf, f)
	require.Len(t, data, 20)
	require.NotEqual(t, byte(markerEOI), data[len(data)-1])
}

func TestScanNoSOF0DefaultsAndStartsAtZero(t *testing.T) {
	buf := []byte{0xFF, 0xD8, 0x01, 0x02, 0x03, 0xFF, markerEOI}
	f := Scan(buf)
	require.Equal(t, Chroma420, f.Chroma)
	require.Equal(t, uint8(defaultQuality), f.Quality)
	require.Equal(t, 0, f.ScanOffset)
}

func TestScanTooShortBufferDropsFrame(t *testing.T) {
	f := Scan([]byte{0xFF})
	require.Equal(t, 0, f.ScanOffset)
	require.Equal(t, 0, f.ScanLen)

	f = Scan(nil)
	require.Equal(t, 0, f.ScanLen)
}

func TestScanDataRespectsBounds(t *testing.T) {
	buf := buildJPEG(0x21, 5)
	f := Scan(buf)
	data := ScanData(buf, f)
	require.Len(t, data, 5)

	// A frame whose scan offset is out of range yields no data rather than
	// panicking.
	bad := Frame{ScanOffset: len(buf) + 100, ScanLen: 10}
	require.Nil(t, ScanData(buf, bad))
}
