package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSetSIPRegisteredTogglesGauge(t *testing.T) {
	r := New()
	r.SetSIPRegistered(true)
	require.Equal(t, float64(1), testutil.ToFloat64(r.SIPRegistered))

	r.SetSIPRegistered(false)
	require.Equal(t, float64(0), testutil.ToFloat64(r.SIPRegistered))
}

func TestSetAACEncoderFailedTogglesGauge(t *testing.T) {
	r := New()
	r.SetAACEncoderFailed(true)
	require.Equal(t, float64(1), testutil.ToFloat64(r.AACEncoderFailed))
}

func TestRTPPacketsSentCountsByPayloadType(t *testing.T) {
	r := New()
	r.RTPPacketsSent.WithLabelValues("pcmu").Inc()
	r.RTPPacketsSent.WithLabelValues("pcmu").Inc()
	r.RTPPacketsSent.WithLabelValues("pcma").Inc()

	require.Equal(t, float64(2), testutil.ToFloat64(r.RTPPacketsSent.WithLabelValues("pcmu")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.RTPPacketsSent.WithLabelValues("pcma")))
}

func TestMultipleRegistriesDoNotCollide(t *testing.T) {
	r1 := New()
	r2 := New()
	r1.ActiveCalls.Set(1)
	r2.ActiveCalls.Set(2)

	require.Equal(t, float64(1), testutil.ToFloat64(r1.ActiveCalls))
	require.Equal(t, float64(2), testutil.ToFloat64(r2.ActiveCalls))
}
