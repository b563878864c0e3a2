package sip

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// OfferConfig parameterizes BuildOffer with the fields §4.1's SDP-offer
// contract needs: where to advertise RTP, and which direction the call
// should run given the local mic/speaker state.
type OfferConfig struct {
	LocalIP      string
	RTPPort      int
	DTMFPayload  int // default 101
	SendAudio    bool
	ReceiveAudio bool
}

// Direction renders the sendrecv/sendonly/recvonly/inactive attribute per
// §4.1, derived from whether local mic capture and speaker output are
// enabled and unmuted.
func (c OfferConfig) Direction() string {
	switch {
	case c.SendAudio && c.ReceiveAudio:
		return "sendrecv"
	case c.SendAudio:
		return "sendonly"
	case c.ReceiveAudio:
		return "recvonly"
	default:
		return "inactive"
	}
}

// BuildOffer renders the one-audio-m-line SDP offer from §4.1: PCMU (PT 0)
// and PCMA (PT 8) at 8000 Hz, telephone-event (PT 101, events 0-15),
// ptime:20, and the caller-derived direction attribute. Built as an
// sdp.SessionDescription and rendered with Marshal, grounded on the
// teacher's pkg/media_builder/utils.go GenerateSDPOffer, rather than
// hand-formatted v=/m=/a= lines.
func BuildOffer(c OfferConfig) []byte {
	if c.DTMFPayload == 0 {
		c.DTMFPayload = 101
	}

	desc := &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username: "doorbell", SessionID: 0, SessionVersion: 0,
			NetworkType: "IN", AddressType: "IP4", UnicastAddress: c.LocalIP,
		},
		SessionName: sdp.SessionName("doorbell"),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN", AddressType: "IP4", Address: &sdp.Address{Address: c.LocalIP},
		},
		TimeDescriptions: []sdp.TimeDescription{{}},
	}

	media := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "audio",
			Port:    sdp.RangedPort{Value: c.RTPPort},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{"0", "8", strconv.Itoa(c.DTMFPayload)},
		},
		Attributes: []sdp.Attribute{
			{Key: "rtpmap", Value: "0 PCMU/8000"},
			{Key: "rtpmap", Value: "8 PCMA/8000"},
			{Key: "rtpmap", Value: fmt.Sprintf("%d telephone-event/8000", c.DTMFPayload)},
			{Key: "fmtp", Value: fmt.Sprintf("%d 0-15", c.DTMFPayload)},
			{Key: "ptime", Value: "20"},
			{Key: c.Direction()},
		},
	}
	desc.MediaDescriptions = []*sdp.MediaDescription{media}

	raw, err := desc.Marshal()
	if err != nil {
		return nil
	}
	return raw
}

// MediaDescriptor is the SDP offer/answer §3 data model produced when
// parsing an INVITE or 200 OK body and consumed by RTP setup.
type MediaDescriptor struct {
	RemoteIP        string
	RemotePort      int
	HasPCMU         bool
	HasPCMA         bool
	PreferredPT     uint8
	DTMFPayloadType uint8
	RemoteSends     bool
	RemoteReceives  bool
}

// ParseMediaDescriptor parses a remote SDP body (from an INVITE or 200 OK)
// into a MediaDescriptor, using github.com/pion/sdp/v3 for the actual
// attribute/media-line grammar rather than hand-rolling a second parser:
// unlike outgoing messages, incoming SDP is third-party-authored and needs
// a real parser's tolerance for attribute ordering and whitespace.
func ParseMediaDescriptor(body []byte) (MediaDescriptor, bool) {
	var sd sdp.SessionDescription
	if err := sd.Unmarshal(body); err != nil {
		return MediaDescriptor{}, false
	}

	desc := MediaDescriptor{DTMFPayloadType: 101, RemoteSends: true, RemoteReceives: true}
	if sd.ConnectionInformation != nil && sd.ConnectionInformation.Address != nil {
		desc.RemoteIP = sd.ConnectionInformation.Address.Address
	}

	for _, md := range sd.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}
		desc.RemotePort = md.MediaName.Port.Value
		if md.ConnectionInformation != nil && md.ConnectionInformation.Address != nil {
			desc.RemoteIP = md.ConnectionInformation.Address.Address
		}

		for _, f := range md.MediaName.Formats {
			switch f {
			case "0":
				desc.HasPCMU = true
			case "8":
				desc.HasPCMA = true
			}
		}
		if len(md.MediaName.Formats) > 0 {
			if n, err := strconv.Atoi(md.MediaName.Formats[0]); err == nil {
				desc.PreferredPT = uint8(n)
			}
		}

		for _, a := range md.Attributes {
			switch a.Key {
			case "rtpmap":
				if pt, ok := parseEventPayload(a.Value); ok {
					desc.DTMFPayloadType = pt
				}
			case "sendonly":
				desc.RemoteSends, desc.RemoteReceives = true, false
			case "recvonly":
				desc.RemoteSends, desc.RemoteReceives = false, true
			case "inactive":
				desc.RemoteSends, desc.RemoteReceives = false, false
			case "sendrecv":
				desc.RemoteSends, desc.RemoteReceives = true, true
			}
		}
		break
	}

	if !desc.HasPCMU && !desc.HasPCMA {
		return desc, false
	}
	return desc, true
}

// parseEventPayload extracts the payload type from an "a=rtpmap:<pt>
// telephone-event/..." attribute value.
func parseEventPayload(rtpmap string) (uint8, bool) {
	fields := strings.Fields(rtpmap)
	if len(fields) != 2 || !strings.HasPrefix(fields[1], "telephone-event") {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}
