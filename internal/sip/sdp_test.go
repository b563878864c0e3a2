package sip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// §8: build_sdp(config) piped through parse_sdp_media round-trips the
// fields that matter to RTP setup: remote port equals the advertised RTP
// port, both static payload types are present, and the DTMF payload type
// defaults to 101.
func TestBuildOfferParseMediaDescriptorRoundTrip(t *testing.T) {
	offer := BuildOffer(OfferConfig{LocalIP: "192.168.1.50", RTPPort: 40002, SendAudio: true, ReceiveAudio: true})
	require.NotEmpty(t, offer)

	desc, ok := ParseMediaDescriptor(offer)
	require.True(t, ok)
	require.Equal(t, "192.168.1.50", desc.RemoteIP)
	require.Equal(t, 40002, desc.RemotePort)
	require.True(t, desc.HasPCMU)
	require.True(t, desc.HasPCMA)
	require.Equal(t, uint8(101), desc.DTMFPayloadType)
	require.True(t, desc.RemoteSends)
	require.True(t, desc.RemoteReceives)
}

func TestBuildOfferDirectionReflectsSendReceiveFlags(t *testing.T) {
	sendOnly, ok := ParseMediaDescriptor(BuildOffer(OfferConfig{LocalIP: "10.0.0.1", RTPPort: 5000, SendAudio: true, ReceiveAudio: false}))
	require.True(t, ok)
	require.True(t, sendOnly.RemoteSends)
	require.False(t, sendOnly.RemoteReceives)

	recvOnly, ok := ParseMediaDescriptor(BuildOffer(OfferConfig{LocalIP: "10.0.0.1", RTPPort: 5000, SendAudio: false, ReceiveAudio: true}))
	require.True(t, ok)
	require.False(t, recvOnly.RemoteSends)
	require.True(t, recvOnly.RemoteReceives)

	inactive, ok := ParseMediaDescriptor(BuildOffer(OfferConfig{LocalIP: "10.0.0.1", RTPPort: 5000}))
	require.True(t, ok)
	require.False(t, inactive.RemoteSends)
	require.False(t, inactive.RemoteReceives)
}

// §4.1: a body that doesn't parse as SDP, or one with no audio media line
// offering PCMU/PCMA, is rejected rather than yielding a half-filled
// descriptor an RTP session would silently misconfigure from.
func TestParseMediaDescriptorRejectsNonAudioOrUnknownCodecs(t *testing.T) {
	_, ok := ParseMediaDescriptor([]byte("not sdp at all"))
	require.False(t, ok)

	onlyOpus := "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nc=IN IP4 127.0.0.1\r\nt=0 0\r\nm=audio 5004 RTP/AVP 111\r\na=rtpmap:111 opus/48000/2\r\n"
	_, ok = ParseMediaDescriptor([]byte(onlyOpus))
	require.False(t, ok)
}
