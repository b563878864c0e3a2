package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jfg3rd/doorbell-core/internal/audio"
)

// §8 scenario 5: "With mic_en=0 the DESCRIBE response contains only the
// video m-line."
func TestBuildDescribeSDPVideoOnlyWithoutAAC(t *testing.T) {
	raw := BuildDescribeSDP("192.168.1.1", 640, 480, nil)
	sdp := string(raw)
	require.Contains(t, sdp, "m=video 0 RTP/AVP 26")
	require.Contains(t, sdp, "a=rtpmap:26 JPEG/90000")
	require.Contains(t, sdp, "a=framesize:26 640-480")
	require.NotContains(t, sdp, "m=audio")
}

func TestBuildDescribeSDPIncludesAudioWhenAACReady(t *testing.T) {
	mic := audio.NewMicCapture(audio.NewBus(audio.MicSourcePDM), &audio.SimulatedCapture{}, true)
	pipeline, err := audio.NewPipeline(mic, &audio.PlaceholderEncoder{SampleRate: 16000}, 16000, 16000)
	require.NoError(t, err)

	raw := BuildDescribeSDP("192.168.1.1", 0, 0, pipeline)
	sdp := string(raw)
	require.Contains(t, sdp, "m=audio 0 RTP/AVP 96")
	require.Contains(t, sdp, "MPEG4-GENERIC/16000")
	require.Contains(t, sdp, "profile-level-id=1")
	require.Contains(t, sdp, "mode=AAC-hbr")
	require.NotContains(t, sdp, "a=framesize")
}
