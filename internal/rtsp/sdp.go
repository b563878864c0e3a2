package rtsp

import (
	"fmt"
	"strconv"

	"github.com/pion/sdp/v3"

	"github.com/jfg3rd/doorbell-core/internal/audio"
)

// VideoPayloadType and AudioPayloadType are the static RTP payload types
// §4.2 assigns the doorbell's two tracks.
const (
	VideoPayloadType = 26 // RFC 2435 JPEG
	AudioPayloadType = 96 // dynamic, MPEG4-GENERIC (AAC-hbr)
)

// BuildDescribeSDP renders the §4.2 DESCRIBE body: a video m-line is
// always present; an audio m-line is added only when the mic is enabled
// and the AAC pipeline initialized successfully. Built as an
// sdp.SessionDescription and rendered with Marshal, matching
// internal/sip/sdp.go's BuildOffer rather than hand-formatting v=/m=/a=
// lines, per this module's SDP-handling convention.
func BuildDescribeSDP(localIP string, width, height int, aac *audio.Pipeline) []byte {
	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username: "-", SessionID: 0, SessionVersion: 0,
			NetworkType: "IN", AddressType: "IP4", UnicastAddress: localIP,
		},
		SessionName: sdp.SessionName("doorbell"),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN", AddressType: "IP4", Address: &sdp.Address{Address: localIP},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
	}

	videoAttrs := []sdp.Attribute{
		{Key: "rtpmap", Value: fmt.Sprintf("%d JPEG/90000", VideoPayloadType)},
		{Key: "control", Value: "track1"},
	}
	if width > 0 && height > 0 {
		videoAttrs = append(videoAttrs, sdp.Attribute{
			Key: "framesize", Value: fmt.Sprintf("%d %d-%d", VideoPayloadType, width, height),
		})
	}
	video := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "video",
			Port:    sdp.RangedPort{Value: 0},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{strconv.Itoa(VideoPayloadType)},
		},
		Attributes: videoAttrs,
	}
	desc.MediaDescriptions = []*sdp.MediaDescription{video}

	if aac != nil && !aac.Failed() {
		if fmtpVal, ok := aac.FmtpValue(AudioPayloadType); ok {
			audioDesc := &sdp.MediaDescription{
				MediaName: sdp.MediaName{
					Media:   "audio",
					Port:    sdp.RangedPort{Value: 0},
					Protos:  []string{"RTP", "AVP"},
					Formats: []string{strconv.Itoa(AudioPayloadType)},
				},
				Attributes: []sdp.Attribute{
					{Key: "rtpmap", Value: aac.RTPMapValue(AudioPayloadType)},
					{Key: "fmtp", Value: fmtpVal},
					{Key: "control", Value: "track2"},
				},
			}
			desc.MediaDescriptions = append(desc.MediaDescriptions, audioDesc)
		}
	}

	raw, err := desc.Marshal()
	if err != nil {
		return nil
	}
	return raw
}
