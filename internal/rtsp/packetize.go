package rtsp

import (
	"github.com/pion/rtp"

	"github.com/jfg3rd/doorbell-core/internal/jpegscan"
	"github.com/jfg3rd/doorbell-core/internal/rtpcommon"
)

// maxJPEGPayload bounds each RTP-JPEG fragment's scan-data bytes per §4.2;
// with the 8-byte JPEG header in front, each fragment's payload is at most
// 1200 bytes, well under a typical Ethernet MTU.
const maxJPEGPayload = 1192

// PacketizeJPEG fragments one JPEG frame's entropy-coded scan data into
// RFC 2435 RTP-JPEG packets via counters (one sequence number per
// fragment, one shared RTP timestamp for the whole frame). The final
// fragment carries the RTP marker bit; this implementation always uses
// the restricted quantization-table form (Q<128, no quant-table header),
// matching jpegscan's fixed Q=80 default.
func PacketizeJPEG(counters *rtpcommon.Counters, scan []byte, f jpegscan.Frame, width, height int) []*rtp.Packet {
	if len(scan) == 0 {
		return nil
	}
	widthBlocks := uint8(width / 8)
	heightBlocks := uint8(height / 8)

	var packets []*rtp.Packet
	offset := 0
	for offset < len(scan) {
		end := offset + maxJPEGPayload
		if end > len(scan) {
			end = len(scan)
		}
		last := end == len(scan)

		header := [8]byte{
			0, // type-specific
			byte(offset >> 16),
			byte(offset >> 8),
			byte(offset),
			byte(f.Chroma),
			f.Quality,
			widthBlocks,
			heightBlocks,
		}

		payload := make([]byte, 0, len(header)+(end-offset))
		payload = append(payload, header[:]...)
		payload = append(payload, scan[offset:end]...)

		packets = append(packets, counters.BuildPacket(VideoPayloadType, last, payload))
		offset = end
	}
	return packets
}

// PacketizeAAC wraps one raw AAC access unit in an RFC 3640 AAC-hbr RTP
// payload: a fixed 2-byte AU-headers-length (0x0010, meaning one 16-bit
// AU-header follows), the AU-header itself (13-bit size, 3-bit index,
// always 0 since each packet carries exactly one AU), and the raw AU
// bytes. Always carries the RTP marker bit, per §4.2's one-AU-per-packet
// rule.
func PacketizeAAC(counters *rtpcommon.Counters, au []byte) *rtp.Packet {
	auHeader := uint16(len(au))<<3 | 0
	payload := make([]byte, 0, 4+len(au))
	payload = append(payload, 0x00, 0x10)
	payload = append(payload, byte(auHeader>>8), byte(auHeader))
	payload = append(payload, au...)
	return counters.BuildPacket(AudioPayloadType, true, payload)
}
