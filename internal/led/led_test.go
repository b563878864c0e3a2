package led

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveRingingBeatsEverything(t *testing.T) {
	c := Conditions{Ringing: true, APMode: true, Connecting: true, SIPError: true, SIPOk: true, RTSPActive: true}
	require.Equal(t, Ringing, Resolve(c))
}

func TestResolvePriorityOrder(t *testing.T) {
	require.Equal(t, APMode, Resolve(Conditions{APMode: true, Connecting: true, SIPError: true}))
	require.Equal(t, Connecting, Resolve(Conditions{Connecting: true, SIPError: true, SIPOk: true}))
	require.Equal(t, SIPError, Resolve(Conditions{SIPError: true, SIPOk: true, RTSPActive: true}))
	require.Equal(t, SIPOk, Resolve(Conditions{SIPOk: true, RTSPActive: true}))
	require.Equal(t, RTSPActive, Resolve(Conditions{RTSPActive: true}))
}

func TestResolveIdleWhenNothingTrue(t *testing.T) {
	require.Equal(t, Idle, Resolve(Conditions{}))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "ringing", Ringing.String())
	require.Equal(t, "ap_mode", APMode.String())
	require.Equal(t, "connecting", Connecting.String())
	require.Equal(t, "sip_error", SIPError.String())
	require.Equal(t, "sip_ok", SIPOk.String())
	require.Equal(t, "rtsp_active", RTSPActive.String())
	require.Equal(t, "idle", Idle.String())
}
